package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shenikar/alerto360/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	notificationListLimit = 100
	messageTimeLayout     = "2006-01-02 15:04:05"
)

// NotificationRepository определяет контракт для работы с уведомлениями в бд
type NotificationRepository interface {
	NotifyResponders(ctx context.Context, responderType models.ResponderType, message string) (int64, error)
	NotifyAdmins(ctx context.Context, message string) (int64, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// NotificationService - рассылка уведомлений и чтение входящих
type NotificationService interface {
	Notifier
	ListNotifications(ctx context.Context, p models.Principal, unreadOnly bool) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, p models.Principal) (int64, error)
	MarkRead(ctx context.Context, p models.Principal, id int64) error
	MarkAllRead(ctx context.Context, p models.Principal) (int64, error)
}

type notificationService struct {
	repo   NotificationRepository
	logger *logrus.Logger
	now    func() time.Time
}

func NewNotificationService(repo NotificationRepository, logger *logrus.Logger) NotificationService {
	return &notificationService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// NotifyNewIncident оповещает службы-адресаты и всех администраторов.
// Вызывается внутри транзакции регистрации: любая ошибка откатывает ее целиком.
func (s *notificationService) NotifyNewIncident(ctx context.Context, incident *models.Incident, override *models.ResponderType) (int64, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "notification",
		"method":      "NotifyNewIncident",
		"incident_id": incident.ID,
	})

	message := s.newIncidentMessage(incident)
	var total int64
	for _, target := range ResponderTargets(incident.Type, override) {
		n, err := s.repo.NotifyResponders(ctx, target, message)
		if err != nil {
			log.WithError(err).WithField("responder_type", target).Error("Failed to notify responders")
			return 0, fmt.Errorf("service: could not notify %s responders: %w", target, err)
		}
		log.WithFields(logrus.Fields{"responder_type": target, "count": n}).Info("Responders notified")
		total += n
	}

	n, err := s.repo.NotifyAdmins(ctx, s.adminMessage("New incident reported", incident))
	if err != nil {
		log.WithError(err).Error("Failed to notify admins")
		return 0, fmt.Errorf("service: could not notify admins: %w", err)
	}
	total += n

	log.WithField("total", total).Info("Incident fan-out completed")
	return total, nil
}

// NotifyIncidentClosed сообщает администраторам о завершении происшествия
func (s *notificationService) NotifyIncidentClosed(ctx context.Context, incident *models.Incident, responder models.Principal) (int64, error) {
	n, err := s.repo.NotifyAdmins(ctx, s.closedMessage(incident, responder))
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service":     "notification",
			"method":      "NotifyIncidentClosed",
			"incident_id": incident.ID,
		}).WithError(err).Error("Failed to notify admins")
		return 0, fmt.Errorf("service: could not notify admins: %w", err)
	}
	return n, nil
}

func (s *notificationService) ListNotifications(ctx context.Context, p models.Principal, unreadOnly bool) ([]*models.Notification, error) {
	list, err := s.repo.ListByUser(ctx, p.UserID, unreadOnly, notificationListLimit)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": "notification",
			"method":  "ListNotifications",
			"user_id": p.UserID,
		}).WithError(err).Error("Failed to list notifications")
		return nil, fmt.Errorf("service: could not list notifications: %w", err)
	}
	return list, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, p models.Principal) (int64, error) {
	n, err := s.repo.CountUnread(ctx, p.UserID)
	if err != nil {
		return 0, fmt.Errorf("service: could not count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead идемпотентен; чужое или несуществующее уведомление - ErrNotificationNotFound
func (s *notificationService) MarkRead(ctx context.Context, p models.Principal, id int64) error {
	found, err := s.repo.MarkRead(ctx, id, p.UserID)
	if err != nil {
		return fmt.Errorf("service: could not mark notification read: %w", err)
	}
	if !found {
		return fmt.Errorf("service: notification %d: %w", id, models.ErrNotificationNotFound)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, p models.Principal) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, p.UserID)
	if err != nil {
		return 0, fmt.Errorf("service: could not mark notifications read: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"service": "notification",
		"method":  "MarkAllRead",
		"user_id": p.UserID,
		"count":   n,
	}).Debug("Notifications marked read")
	return n, nil
}

func (s *notificationService) newIncidentMessage(incident *models.Incident) string {
	var b strings.Builder
	b.WriteString("NEW EMERGENCY ALERT\n")
	fmt.Fprintf(&b, "Type: %s\n", incident.Type)
	fmt.Fprintf(&b, "Incident ID: #%d\n", incident.ID)
	if loc := locationInfo(incident); loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	b.WriteString("Status: PENDING - Requires immediate response\n")
	fmt.Fprintf(&b, "Time: %s", s.now().Format(messageTimeLayout))
	return b.String()
}

func (s *notificationService) adminMessage(action string, incident *models.Incident) string {
	var b strings.Builder
	b.WriteString("ADMIN NOTIFICATION\n")
	fmt.Fprintf(&b, "Action: %s\n", action)
	fmt.Fprintf(&b, "Incident Type: %s\n", incident.Type)
	fmt.Fprintf(&b, "Incident ID: #%d\n", incident.ID)
	fmt.Fprintf(&b, "Time: %s", s.now().Format(messageTimeLayout))
	return b.String()
}

func (s *notificationService) closedMessage(incident *models.Incident, responder models.Principal) string {
	status := strings.ToUpper(string(incident.Status))
	var b strings.Builder
	fmt.Fprintf(&b, "INCIDENT %s\n", status)
	fmt.Fprintf(&b, "Incident ID: #%d\n", incident.ID)
	fmt.Fprintf(&b, "Type: %s\n", incident.Type)
	fmt.Fprintf(&b, "Reporter: user #%d\n", incident.UserID)
	fmt.Fprintf(&b, "Completed by: responder #%d (%s)\n", responder.UserID, responder.ResponderType)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Completed at: %s", s.now().Format(messageTimeLayout))
	return b.String()
}

func locationInfo(incident *models.Incident) string {
	if incident.Latitude == nil || incident.Longitude == nil {
		return ""
	}
	return fmt.Sprintf("%.6f, %.6f", *incident.Latitude, *incident.Longitude)
}
