package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/alerto360/internal/models"
)

const (
	webhookQueueKey = "webhook_events"
)

// EventType - тип события жизненного цикла происшествия
type EventType string

const (
	EventIncidentCreated   EventType = "incident.created"
	EventIncidentAccepted  EventType = "incident.accepted"
	EventIncidentCompleted EventType = "incident.completed"
	EventIncidentResolved  EventType = "incident.resolved"
)

// EventTypeForStatus возвращает тип события для нового статуса
func EventTypeForStatus(status models.IncidentStatus) EventType {
	switch status {
	case models.StatusAccepted:
		return EventIncidentAccepted
	case models.StatusCompleted:
		return EventIncidentCompleted
	case models.StatusResolved:
		return EventIncidentResolved
	default:
		return EventIncidentCreated
	}
}

// WebhookEvent - событие для внешней диспетчерской системы
type WebhookEvent struct {
	ID            string                `json:"id"`
	Type          EventType             `json:"type"`
	IncidentID    int64                 `json:"incident_id"`
	IncidentType  models.IncidentType   `json:"incident_type"`
	Status        models.IncidentStatus `json:"status"`
	ResponderType models.ResponderType  `json:"responder_type"`
	ActorID       int64                 `json:"actor_id"`
	Latitude      *float64              `json:"latitude,omitempty"`
	Longitude     *float64              `json:"longitude,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
}

// NewIncidentEvent собирает событие по текущему состоянию происшествия
func NewIncidentEvent(incident *models.Incident, actorID int64) WebhookEvent {
	return WebhookEvent{
		ID:            uuid.NewString(),
		Type:          EventTypeForStatus(incident.Status),
		IncidentID:    incident.ID,
		IncidentType:  incident.Type,
		Status:        incident.Status,
		ResponderType: incident.ResponderType,
		ActorID:       actorID,
		Latitude:      incident.Latitude,
		Longitude:     incident.Longitude,
		Timestamp:     time.Now().UTC(),
	}
}

// WebhookPublisher - интерфейс для публикации событий
type WebhookPublisher interface {
	Publish(ctx context.Context, event WebhookEvent) error
}

// RedisWebhookPublisher кладет события в очередь Redis, откуда их забирает WebhookWorker
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH в голову, воркер забирает BRPOP с хвоста
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}

// NopPublisher отбрасывает события (EVENT_BROKER=none)
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, WebhookEvent) error { return nil }
