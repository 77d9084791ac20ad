package v1

import (
	"github.com/shenikar/alerto360/internal/models"
)

// DTOToNewIncident преобразует DTO в входные данные сервиса. Изображение добавляется отдельно.
func DTOToNewIncident(dto CreateIncidentRequest) models.NewIncident {
	return models.NewIncident{
		Type:              models.IncidentType(dto.Type),
		Description:       dto.Description,
		Latitude:          dto.Latitude,
		Longitude:         dto.Longitude,
		ResponderOverride: dto.ResponderType,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:            model.ID,
		ReporterID:    model.UserID,
		Type:          string(model.Type),
		Description:   model.Description,
		Latitude:      model.Latitude,
		Longitude:     model.Longitude,
		ImagePath:     model.ImagePath,
		ResponderType: string(model.ResponderType),
		Overridden:    model.Overridden,
		Status:        string(model.Status),
		AcceptedBy:    model.AcceptedBy,
		AcceptedAt:    model.AcceptedAt,
		CompletedAt:   model.CompletedAt,
		CreatedAt:     model.CreatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func ModelToUserResponse(user *models.User) UserResponse {
	resp := UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
		ContactInfo: ContactInfo{
			PhoneNumber:                  user.PhoneNumber,
			Address:                      user.Address,
			EmergencyContactName:         user.EmergencyContactName,
			EmergencyContactPhone:        user.EmergencyContactPhone,
			EmergencyContactRelationship: user.EmergencyContactRelationship,
		},
		CreatedAt: user.CreatedAt,
	}
	if user.ResponderType != nil {
		resp.ResponderType = string(*user.ResponderType)
	}
	return resp
}

func ModelsToUserResponses(users []*models.User) []UserResponse {
	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = ModelToUserResponse(user)
	}
	return responses
}

func ModelsToNotificationResponses(list []*models.Notification) []NotificationResponse {
	responses := make([]NotificationResponse, len(list))
	for i, n := range list {
		responses[i] = NotificationResponse{
			ID:        n.ID,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		}
	}
	return responses
}

// StatusCountsToResponse заполняет нулями статусы, которых нет в выборке
func StatusCountsToResponse(counts []models.StatusCount) StatsResponse {
	resp := StatsResponse{Counts: make(map[string]int64, len(models.IncidentStatuses()))}
	for _, status := range models.IncidentStatuses() {
		resp.Counts[string(status)] = 0
	}
	for _, c := range counts {
		resp.Counts[string(c.Status)] = c.Count
		resp.Total += c.Count
	}
	return resp
}
