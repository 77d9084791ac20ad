package service

import (
	"slices"

	"github.com/shenikar/alerto360/internal/models"
)

// RouteResponder - служба, назначаемая происшествию по его типу
func RouteResponder(t models.IncidentType) models.ResponderType {
	switch t {
	case models.IncidentFire:
		return models.ResponderBFP
	case models.IncidentCrime:
		return models.ResponderPNP
	default:
		return models.ResponderMDDRMO
	}
}

// ResponderTargets - службы, которые получают уведомление о новом происшествии.
// Явно выбранная жителем служба заменяет таблицу.
func ResponderTargets(t models.IncidentType, override *models.ResponderType) []models.ResponderType {
	if override != nil {
		return []models.ResponderType{*override}
	}
	switch t {
	case models.IncidentFire:
		return []models.ResponderType{models.ResponderBFP}
	case models.IncidentCrime:
		return []models.ResponderType{models.ResponderPNP}
	case models.IncidentFlood, models.IncidentLandslide, models.IncidentAccident:
		return []models.ResponderType{models.ResponderMDDRMO}
	case models.IncidentOther:
		return []models.ResponderType{models.ResponderMDDRMO, models.ResponderPNP}
	default:
		return []models.ResponderType{models.ResponderMDDRMO}
	}
}

// SharedIncidentTypes - типы, о которых служба оповещается по умолчанию,
// даже если происшествие назначено другой службе
func SharedIncidentTypes(rt models.ResponderType) []models.IncidentType {
	var shared []models.IncidentType
	for _, t := range models.IncidentTypes() {
		if RouteResponder(t) == rt {
			continue
		}
		for _, target := range ResponderTargets(t, nil) {
			if target == rt {
				shared = append(shared, t)
				break
			}
		}
	}
	return shared
}

// InResponderQueue - видит ли респондент происшествие. Совпадает с тем, кого оповестила рассылка.
func InResponderQueue(p models.Principal, incident *models.Incident) bool {
	if incident.ResponderType == p.ResponderType {
		return true
	}
	if incident.AcceptedBy != nil && *incident.AcceptedBy == p.UserID {
		return true
	}
	if incident.Overridden {
		return false
	}
	return slices.Contains(ResponderTargets(incident.Type, nil), p.ResponderType)
}
