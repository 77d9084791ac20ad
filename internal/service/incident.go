package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/shenikar/alerto360/internal/export"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/vision"
	"github.com/shenikar/alerto360/internal/webhook"
	"github.com/sirupsen/logrus"
)

const maxDescriptionLength = 2000

// IncidentRepository определяет контракт для работы с бд происшествий
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id int64) (*models.Incident, error)
	Accept(ctx context.Context, id, responderID int64) (*models.Incident, bool, error)
	Close(ctx context.Context, id, responderID int64, to models.IncidentStatus) (*models.Incident, bool, error)
	List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	// GetIncidentFromCache возвращает запись из кэша (nil при промахе) и текущее поколение ключа
	GetIncidentFromCache(ctx context.Context, id int64) (*models.Incident, int64, error)
	// SetIncidentCache пишет запись, только если поколение не сменилось с момента чтения
	SetIncidentCache(ctx context.Context, incident *models.Incident, version int64) (bool, error)
	InvalidateIncidentCache(ctx context.Context, id int64) error
}

// Transactor выполняет fn в одной транзакции, репозитории берут ее из ctx
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ImageStore - хранилище фотографий происшествий
type ImageStore interface {
	Save(ctx context.Context, data []byte, contentType, ext string) (string, error)
	Delete(ctx context.Context, path string) error
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
}

type ImageClassifier interface {
	Classify(r io.Reader) vision.Result
}

// Notifier - рассылка уведомлений, вызываемая внутри транзакций жизненного цикла
type Notifier interface {
	NotifyNewIncident(ctx context.Context, incident *models.Incident, override *models.ResponderType) (int64, error)
	NotifyIncidentClosed(ctx context.Context, incident *models.Incident, responder models.Principal) (int64, error)
}

// IncidentService определяет контракт бизнес-логики жизненного цикла происшествий
type IncidentService interface {
	ReportIncident(ctx context.Context, p models.Principal, in models.NewIncident) (*models.Incident, error)
	GetIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error)
	GetIncidentImage(ctx context.Context, p models.Principal, id int64) (io.ReadCloser, string, error)
	ListIncidents(ctx context.Context, p models.Principal, status string, page, pageSize int) ([]*models.Incident, error)
	AcceptIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error)
	CompleteIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error)
	ResolveIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error)
	IncidentStats(ctx context.Context, p models.Principal) ([]models.StatusCount, error)
	ExportIncidents(ctx context.Context, p models.Principal) ([]byte, error)
}

type incidentService struct {
	repo       IncidentRepository
	tx         Transactor
	notifier   Notifier
	images     ImageStore
	classifier ImageClassifier
	publisher  webhook.WebhookPublisher
	logger     *logrus.Logger
}

func NewIncidentService(
	repo IncidentRepository,
	tx Transactor,
	notifier Notifier,
	images ImageStore,
	classifier ImageClassifier,
	publisher webhook.WebhookPublisher,
	logger *logrus.Logger,
) IncidentService {
	return &incidentService{
		repo:       repo,
		tx:         tx,
		notifier:   notifier,
		images:     images,
		classifier: classifier,
		publisher:  publisher,
		logger:     logger,
	}
}

// ReportIncident регистрирует происшествие от жителя. Запись и рассылка идут в одной транзакции;
// при ее откате сохраненное фото удаляется.
func (s *incidentService) ReportIncident(ctx context.Context, p models.Principal, in models.NewIncident) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "ReportIncident",
		"user_id": p.UserID,
		"type":    in.Type,
	})
	log.Info("Attempting to report a new incident")

	if p.Role != models.RoleCitizen {
		return nil, fmt.Errorf("service: only citizens can report incidents: %w", models.ErrForbidden)
	}

	if err := validateNewIncident(in); err != nil {
		log.WithError(err).Warn("Rejected invalid incident report")
		return nil, err
	}

	var override *models.ResponderType
	if strings.TrimSpace(in.ResponderOverride) != "" {
		rt, err := models.ParseResponderType(in.ResponderOverride)
		if err != nil {
			return nil, err
		}
		override = &rt
	}

	responderType := RouteResponder(in.Type)
	if override != nil {
		responderType = *override
	}

	description := strings.TrimSpace(in.Description)
	if description == "" && len(in.Image) > 0 {
		result := s.classifier.Classify(bytes.NewReader(in.Image))
		description = result.Description
		log.WithFields(logrus.Fields{
			"suggested_type": result.IncidentType,
			"confidence":     result.Confidence,
		}).Info("Description taken from image analysis")
	}

	var imagePath *string
	if len(in.Image) > 0 {
		path, err := s.images.Save(ctx, in.Image, in.ImageContentType, in.ImageExt)
		if err != nil {
			log.WithError(err).Error("Failed to store incident image")
			return nil, fmt.Errorf("service: could not store image: %w", err)
		}
		imagePath = &path
	}

	incident := &models.Incident{
		UserID:        p.UserID,
		Type:          in.Type,
		Description:   description,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		ImagePath:     imagePath,
		ResponderType: responderType,
		Overridden:    override != nil,
		Status:        models.StatusPending,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, incident); err != nil {
			return err
		}
		_, err := s.notifier.NotifyNewIncident(ctx, incident, override)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Failed to report incident, transaction rolled back")
		if imagePath != nil {
			if delErr := s.images.Delete(ctx, *imagePath); delErr != nil {
				log.WithError(delErr).WithField("image_path", *imagePath).Warn("Failed to remove orphaned image")
			}
		}
		return nil, fmt.Errorf("service: could not report incident: %w", err)
	}

	log.WithFields(logrus.Fields{
		"incident_id":    incident.ID,
		"responder_type": incident.ResponderType,
	}).Info("Incident reported successfully")
	s.publishEvent(ctx, incident, p.UserID)
	return incident, nil
}

// GetIncident возвращает происшествие с учетом роли, сначала из кэша
func (s *incidentService) GetIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})

	incident, version, err := s.repo.GetIncidentFromCache(ctx, id)
	cacheOK := err == nil
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
		incident = nil
	}

	if incident == nil {
		incident, err = s.repo.GetByID(ctx, id)
		if err != nil {
			log.WithError(err).Warn("Failed to get incident from repository")
			return nil, fmt.Errorf("service: could not get incident: %w", err)
		}
		// без поколения запись в кэш небезопасна
		if cacheOK {
			stored, err := s.repo.SetIncidentCache(ctx, incident, version)
			switch {
			case err != nil:
				log.WithError(err).Warn("Failed to cache incident")
			case !stored:
				log.Debug("Incident changed while reading, cache write skipped")
			}
		}
	} else {
		log.Debug("Incident served from cache")
	}

	if !canView(p, incident) {
		return nil, fmt.Errorf("service: incident %d: %w", id, models.ErrForbidden)
	}
	return incident, nil
}

// GetIncidentImage отдает фото происшествия тем, кому видно само происшествие.
// Закрыть поток обязан вызывающий.
func (s *incidentService) GetIncidentImage(ctx context.Context, p models.Principal, id int64) (io.ReadCloser, string, error) {
	incident, err := s.GetIncident(ctx, p, id)
	if err != nil {
		return nil, "", err
	}
	if incident.ImagePath == nil {
		return nil, "", fmt.Errorf("service: incident %d: %w", id, models.ErrImageNotFound)
	}

	rc, contentType, err := s.images.Open(ctx, *incident.ImagePath)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service":     "incident",
			"method":      "GetIncidentImage",
			"incident_id": id,
		}).WithError(err).Warn("Failed to open incident image")
		return nil, "", fmt.Errorf("service: could not open image: %w", err)
	}
	return rc, contentType, nil
}

// ListIncidents возвращает происшествия, видимые пользователю
func (s *incidentService) ListIncidents(ctx context.Context, p models.Principal, status string, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"role":      p.Role,
		"page":      page,
		"page_size": pageSize,
	})

	filter, err := scopedFilter(p)
	if err != nil {
		return nil, err
	}
	filter.Page = page
	filter.PageSize = pageSize

	if strings.TrimSpace(status) != "" {
		st, err := models.ParseIncidentStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = &st
	}

	incidents, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// AcceptIncident: pending -> accepted. Победитель гонки определяется условным UPDATE.
func (s *incidentService) AcceptIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "AcceptIncident",
		"incident_id":  id,
		"responder_id": p.UserID,
	})
	log.Info("Attempting to accept incident")

	if p.Role != models.RoleResponder {
		return nil, fmt.Errorf("service: only responders can accept incidents: %w", models.ErrForbidden)
	}

	incident, applied, err := s.repo.Accept(ctx, id, p.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to accept incident in repository")
		return nil, fmt.Errorf("service: could not accept incident: %w", err)
	}
	if !applied {
		// строка не обновилась: либо ее нет, либо ее уже взяли
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("service: could not accept incident: %w", err)
		}
		log.Warn("Incident already processed")
		return nil, fmt.Errorf("service: incident %d: %w", id, models.ErrAlreadyProcessed)
	}

	s.invalidate(ctx, log, id)
	log.Info("Incident accepted successfully")
	s.publishEvent(ctx, incident, p.UserID)
	return incident, nil
}

// CompleteIncident: accepted -> completed, только для принявшего респондента
func (s *incidentService) CompleteIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error) {
	return s.closeIncident(ctx, p, id, models.StatusCompleted)
}

// ResolveIncident: accepted -> resolved, с теми же проверками, что и complete
func (s *incidentService) ResolveIncident(ctx context.Context, p models.Principal, id int64) (*models.Incident, error) {
	return s.closeIncident(ctx, p, id, models.StatusResolved)
}

func (s *incidentService) closeIncident(ctx context.Context, p models.Principal, id int64, to models.IncidentStatus) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "closeIncident",
		"incident_id":  id,
		"responder_id": p.UserID,
		"to":           to,
	})
	log.Info("Attempting to close incident")

	if p.Role != models.RoleResponder {
		return nil, fmt.Errorf("service: only responders can close incidents: %w", models.ErrForbidden)
	}

	var closed *models.Incident
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		incident, applied, err := s.repo.Close(ctx, id, p.UserID, to)
		if err != nil {
			return err
		}
		if !applied {
			existing, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if existing.Status != models.StatusAccepted {
				return fmt.Errorf("incident %d is %s: %w", id, existing.Status, models.ErrInvalidTransition)
			}
			return models.ErrNotOwner
		}
		closed = incident
		_, err = s.notifier.NotifyIncidentClosed(ctx, incident, p)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("Failed to close incident")
		return nil, fmt.Errorf("service: could not close incident: %w", err)
	}

	s.invalidate(ctx, log, id)
	log.Info("Incident closed successfully")
	s.publishEvent(ctx, closed, p.UserID)
	return closed, nil
}

// IncidentStats - количество происшествий по статусам, только для администратора
func (s *incidentService) IncidentStats(ctx context.Context, p models.Principal) ([]models.StatusCount, error) {
	if p.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: stats are admin only: %w", models.ErrForbidden)
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"service": "incident", "method": "IncidentStats"}).
			WithError(err).Error("Failed to count incidents")
		return nil, fmt.Errorf("service: could not count incidents: %w", err)
	}
	return counts, nil
}

// ExportIncidents формирует XLSX со всеми происшествиями
func (s *incidentService) ExportIncidents(ctx context.Context, p models.Principal) ([]byte, error) {
	log := s.logger.WithFields(logrus.Fields{"service": "incident", "method": "ExportIncidents"})
	if p.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: export is admin only: %w", models.ErrForbidden)
	}

	incidents, err := s.repo.List(ctx, models.IncidentFilter{})
	if err != nil {
		log.WithError(err).Error("Failed to list incidents for export")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to count incidents for export")
		return nil, fmt.Errorf("service: could not count incidents: %w", err)
	}

	data, err := export.IncidentsXLSX(incidents, counts)
	if err != nil {
		log.WithError(err).Error("Failed to build workbook")
		return nil, fmt.Errorf("service: could not export incidents: %w", err)
	}
	log.WithField("count", len(incidents)).Info("Incidents exported")
	return data, nil
}

func (s *incidentService) invalidate(ctx context.Context, log *logrus.Entry, id int64) {
	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}

// publishEvent - доставка best-effort, ошибка только логируется
func (s *incidentService) publishEvent(ctx context.Context, incident *models.Incident, actorID int64) {
	event := webhook.NewIncidentEvent(incident, actorID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithFields(logrus.Fields{
			"incident_id": incident.ID,
			"event_type":  event.Type,
		}).WithError(err).Warn("Failed to publish incident event")
	}
}

func validateNewIncident(in models.NewIncident) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown incident type %q", models.ErrValidation, in.Type)
	}
	description := strings.TrimSpace(in.Description)
	if description == "" && len(in.Image) == 0 {
		return fmt.Errorf("%w: description is required", models.ErrValidation)
	}
	if len(description) > maxDescriptionLength {
		return fmt.Errorf("%w: description is longer than %d characters", models.ErrValidation, maxDescriptionLength)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be provided together", models.ErrValidation)
	}
	if in.Latitude != nil {
		lat, lon := *in.Latitude, *in.Longitude
		if math.IsNaN(lat) || lat < -90 || lat > 90 {
			return fmt.Errorf("%w: latitude out of range", models.ErrValidation)
		}
		if math.IsNaN(lon) || lon < -180 || lon > 180 {
			return fmt.Errorf("%w: longitude out of range", models.ErrValidation)
		}
	}
	return nil
}

// scopedFilter ограничивает выборку ролью: житель видит свои, респондент - то, о чем его оповещают, и принятое им
func scopedFilter(p models.Principal) (models.IncidentFilter, error) {
	switch p.Role {
	case models.RoleAdmin:
		return models.IncidentFilter{}, nil
	case models.RoleCitizen:
		id := p.UserID
		return models.IncidentFilter{ReporterID: &id}, nil
	case models.RoleResponder:
		return models.IncidentFilter{Queue: &models.ResponderQueue{
			ResponderType: p.ResponderType,
			SharedTypes:   SharedIncidentTypes(p.ResponderType),
			AcceptedBy:    p.UserID,
		}}, nil
	default:
		return models.IncidentFilter{}, fmt.Errorf("service: unknown role %q: %w", p.Role, models.ErrForbidden)
	}
}

func canView(p models.Principal, incident *models.Incident) bool {
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCitizen:
		return incident.UserID == p.UserID
	case models.RoleResponder:
		return InResponderQueue(p, incident)
	}
	return false
}
