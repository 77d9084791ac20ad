package models

import (
	"fmt"
	"strings"
	"time"
)

// IncidentType - тип происшествия
type IncidentType string

const (
	IncidentFire      IncidentType = "Fire"
	IncidentCrime     IncidentType = "Crime"
	IncidentFlood     IncidentType = "Flood"
	IncidentLandslide IncidentType = "Landslide"
	IncidentAccident  IncidentType = "Accident"
	IncidentOther     IncidentType = "Other"
)

// IncidentTypes возвращает закрытый набор типов происшествий
func IncidentTypes() []IncidentType {
	return []IncidentType{IncidentFire, IncidentCrime, IncidentFlood, IncidentLandslide, IncidentAccident, IncidentOther}
}

func (t IncidentType) Valid() bool {
	for _, v := range IncidentTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// ResponderType - служба реагирования
type ResponderType string

const (
	ResponderPNP    ResponderType = "PNP"
	ResponderBFP    ResponderType = "BFP"
	ResponderMDDRMO ResponderType = "MDDRMO"
)

func ResponderTypes() []ResponderType {
	return []ResponderType{ResponderPNP, ResponderBFP, ResponderMDDRMO}
}

func (r ResponderType) Valid() bool {
	switch r {
	case ResponderPNP, ResponderBFP, ResponderMDDRMO:
		return true
	}
	return false
}

// ParseResponderType разбирает службу без учета регистра
func ParseResponderType(s string) (ResponderType, error) {
	r := ResponderType(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown responder type %q", ErrValidation, s)
	}
	return r, nil
}

// IncidentStatus - статус жизненного цикла происшествия
type IncidentStatus string

const (
	StatusPending   IncidentStatus = "pending"
	StatusAccepted  IncidentStatus = "accepted"
	StatusCompleted IncidentStatus = "completed"
	StatusResolved  IncidentStatus = "resolved"
)

func IncidentStatuses() []IncidentStatus {
	return []IncidentStatus{StatusPending, StatusAccepted, StatusCompleted, StatusResolved}
}

func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusResolved:
		return true
	}
	return false
}

// Terminal - true для completed и resolved
func (s IncidentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusResolved
}

// ParseIncidentStatus приводит статус к закрытому набору.
// Устаревшие написания ("done", "accept and complete") считаются completed, пустая строка - pending.
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatusPending, nil
	case "accepted":
		return StatusAccepted, nil
	case "completed", "done", "accept and complete":
		return StatusCompleted, nil
	case "resolved":
		return StatusResolved, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Incident - происшествие, зарегистрированное жителем
type Incident struct {
	ID            int64          `db:"id" json:"id"`
	UserID        int64          `db:"user_id" json:"user_id"`
	Type          IncidentType   `db:"type" json:"type"`
	Description   string         `db:"description" json:"description"`
	Latitude      *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64       `db:"longitude" json:"longitude,omitempty"`
	ImagePath     *string        `db:"image_path" json:"image_path,omitempty"`
	ResponderType ResponderType  `db:"responder_type" json:"responder_type"`
	Overridden    bool           `db:"responder_overridden" json:"responder_overridden"` // службу выбрал житель
	Status        IncidentStatus `db:"status" json:"status"`
	AcceptedBy    *int64         `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt    *time.Time     `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// NewIncident - входные данные для регистрации происшествия
type NewIncident struct {
	Type              IncidentType
	Description       string
	Latitude          *float64
	Longitude         *float64
	ResponderOverride string
	Image             []byte
	ImageContentType  string
	ImageExt          string
}

// IncidentFilter - фильтр для выборки происшествий
type IncidentFilter struct {
	ReporterID *int64
	Queue      *ResponderQueue
	Status     *IncidentStatus
	Page       int
	PageSize   int // 0 - без ограничения
}

// ResponderQueue - что видит респондент: происшествия своей службы, происшествия
// других служб, о которых его служба оповещается по умолчанию, и принятые им самим
type ResponderQueue struct {
	ResponderType ResponderType
	SharedTypes   []IncidentType
	AcceptedBy    int64
}

// StatusCount - количество происшествий в статусе
type StatusCount struct {
	Status IncidentStatus `db:"status" json:"status"`
	Count  int64          `db:"count" json:"count"`
}
