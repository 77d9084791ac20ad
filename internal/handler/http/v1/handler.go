package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shenikar/alerto360/internal/config"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService     service.IncidentService
	userService         service.UserService
	notificationService service.NotificationService
	classifier          service.ImageClassifier
	logger              *logrus.Logger
	validate            *validator.Validate
	cfg                 *config.Config
}

func NewHandler(
	incidentService service.IncidentService,
	userService service.UserService,
	notificationService service.NotificationService,
	classifier service.ImageClassifier,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		incidentService:     incidentService,
		userService:         userService,
		notificationService: notificationService,
		classifier:          classifier,
		logger:              logger,
		validate:            validator.New(),
		cfg:                 cfg,
	}
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindJSON читает и валидирует тело запроса, при ошибке отвечает 400 сам
func (h *Handler) bindJSON(c *gin.Context, log *logrus.Entry, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError переводит ошибку сервиса в HTTP-ответ
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed in service")
	} else {
		log.WithError(err).Warn("Request rejected by service")
	}
	c.JSON(status, gin.H{"error": message})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		msg := err.Error()
		if i := strings.Index(msg, models.ErrValidation.Error()); i >= 0 {
			msg = msg[i:]
		}
		return http.StatusBadRequest, msg
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, models.ErrInvalidCredentials.Error()
	case errors.Is(err, models.ErrNotOwner):
		return http.StatusForbidden, models.ErrNotOwner.Error()
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, models.ErrForbidden.Error()
	case errors.Is(err, models.ErrIncidentNotFound):
		return http.StatusNotFound, models.ErrIncidentNotFound.Error()
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound, models.ErrUserNotFound.Error()
	case errors.Is(err, models.ErrNotificationNotFound):
		return http.StatusNotFound, models.ErrNotificationNotFound.Error()
	case errors.Is(err, models.ErrImageNotFound):
		return http.StatusNotFound, models.ErrImageNotFound.Error()
	case errors.Is(err, models.ErrAlreadyProcessed):
		return http.StatusConflict, models.ErrAlreadyProcessed.Error()
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, models.ErrInvalidTransition.Error()
	case errors.Is(err, models.ErrEmailTaken):
		return http.StatusConflict, models.ErrEmailTaken.Error()
	case errors.Is(err, models.ErrUserInUse):
		return http.StatusConflict, models.ErrUserInUse.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
