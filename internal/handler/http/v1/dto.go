package v1

import (
	"time"

	"github.com/shenikar/alerto360/internal/vision"
)

// RegisterRequest DTO для регистрации жителя
// @Description DTO для регистрации жителя
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest DTO для входа
// @Description DTO для входа
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse DTO с токеном доступа
// @Description DTO с токеном доступа
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse DTO учетной записи
// @Description DTO учетной записи
type UserResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	ResponderType string `json:"responder_type,omitempty"`
	ContactInfo
	CreatedAt time.Time `json:"created_at"`
}

// ContactInfo - контактные данные профиля
type ContactInfo struct {
	PhoneNumber                  string `json:"phone_number"`
	Address                      string `json:"address"`
	EmergencyContactName         string `json:"emergency_contact_name"`
	EmergencyContactPhone        string `json:"emergency_contact_phone"`
	EmergencyContactRelationship string `json:"emergency_contact_relationship"`
}

// UpdateProfileRequest DTO для изменения профиля, отсутствующие поля не меняются
// @Description DTO для изменения профиля
type UpdateProfileRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`

	PhoneNumber                  *string `json:"phone_number,omitempty" validate:"omitempty,max=32"`
	Address                      *string `json:"address,omitempty" validate:"omitempty,max=255"`
	EmergencyContactName         *string `json:"emergency_contact_name,omitempty" validate:"omitempty,max=100"`
	EmergencyContactPhone        *string `json:"emergency_contact_phone,omitempty" validate:"omitempty,max=32"`
	EmergencyContactRelationship *string `json:"emergency_contact_relationship,omitempty" validate:"omitempty,max=50"`
}

// CreateResponderRequest DTO для создания учетной записи службы
// @Description DTO для создания учетной записи службы
type CreateResponderRequest struct {
	Name          string `json:"name" validate:"required,min=2,max=100"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8,max=72"`
	ResponderType string `json:"responder_type" validate:"required"`
}

// UpdateResponderRequest DTO для изменения учетной записи службы администратором
// @Description DTO для изменения учетной записи службы
type UpdateResponderRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Password      *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	ResponderType *string `json:"responder_type,omitempty"`
}

// CreateIncidentRequest DTO для сообщения о происшествии (JSON или multipart с полем image)
// @Description DTO для сообщения о происшествии
type CreateIncidentRequest struct {
	Type          string   `json:"type" form:"type" validate:"required"`
	Description   string   `json:"description" form:"description" validate:"max=2000"`
	Latitude      *float64 `json:"latitude" form:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" form:"longitude" validate:"omitempty,longitude"`
	ResponderType string   `json:"responder_type,omitempty" form:"responder_type"`
}

// IncidentResponse DTO для ответа с информацией о происшествии
// @Description DTO для ответа с информацией о происшествии
type IncidentResponse struct {
	ID            int64      `json:"id"`
	ReporterID    int64      `json:"reporter_id"`
	Type          string     `json:"type"`
	Description   string     `json:"description"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	ImagePath     *string    `json:"image_path,omitempty"`
	ResponderType string     `json:"responder_type"`
	Overridden    bool       `json:"responder_overridden"`
	Status        string     `json:"status"`
	AcceptedBy    *int64     `json:"accepted_by,omitempty"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StatsResponse DTO для ответа со статистикой
// @Description DTO для ответа со статистикой
type StatsResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

// NotificationResponse DTO уведомления
// @Description DTO уведомления
type NotificationResponse struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// AnalysisResponse - результат анализа изображения, всегда с кодом 200
// @Description Результат анализа изображения
type AnalysisResponse struct {
	vision.Result
}
