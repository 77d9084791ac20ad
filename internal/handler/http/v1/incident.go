package v1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shenikar/alerto360/internal/export"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/vision"
	"github.com/sirupsen/logrus"
)

// запас на остальные поля формы сверх лимита на изображение
const multipartOverhead = 1 << 20

// @Summary Report a new incident
// @Description Citizen reports an incident. Accepts JSON or multipart/form-data with an optional "image" file (JPEG, PNG, GIF, WebP, up to 5 MiB).
// @Tags Incidents
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param incident body CreateIncidentRequest true "Incident report"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Only citizens can report"
// @Failure 413 {object} map[string]string "Image too large"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	p := principalFrom(c)
	log := h.logger.WithField("method", "createIncident").WithField("user_id", p.UserID)

	var (
		input CreateIncidentRequest
		image *uploadedImage
	)

	if strings.HasPrefix(c.ContentType(), binding.MIMEMultipartPOSTForm) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+multipartOverhead)
		form, err := c.MultipartForm()
		if err != nil {
			log.WithError(err).Warn("Failed to parse multipart form")
			h.respondUploadError(c, err)
			return
		}
		defer form.RemoveAll()

		if err := c.ShouldBindWith(&input, binding.FormMultipart); err != nil {
			log.WithError(err).Warn("Failed to bind form")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		image, err = readImage(form, h.cfg.MaxUploadBytes)
		if err != nil {
			log.WithError(err).Warn("Rejected uploaded image")
			h.respondUploadError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := DTOToNewIncident(input)
	if image != nil {
		in.Image = image.data
		in.ImageContentType = image.contentType
		in.ImageExt = image.ext
	}

	incident, err := h.incidentService.ReportIncident(c.Request.Context(), p, in)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident))
}

func (h *Handler) respondUploadError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errImageTooLarge), errors.As(err, &maxErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errImageTooLarge.Error()})
	case errors.Is(err, models.ErrValidation):
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
	}
}

// @Summary Get a list of incidents
// @Description Role-scoped list: citizens see their own reports, responders see their service queue, admins see everything.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter (pending, accepted, completed, resolved)"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Unknown status"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), principalFrom(c), c.Query("status"), page, pageSize)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident visible to the current user.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get incident photo
// @Description Streams the photo attached to an incident visible to the current user.
// @Tags Incidents
// @Produce image/jpeg,image/png,image/webp
// @Security BearerAuth
// @Param id path int true "Incident ID"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Incident or image not found"
// @Router /incidents/{id}/image [get]
func (h *Handler) getIncidentImage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "getIncidentImage").WithField("id", id)

	rc, contentType, err := h.incidentService.GetIncidentImage(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

// @Summary Accept an incident
// @Description Responder takes a pending incident. Only one responder can win.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path int true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 403 {object} map[string]string "Only responders"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Already processed"
// @Router /incidents/{id}/accept [post]
func (h *Handler) acceptIncident(c *gin.Context) {
	h.transition(c, "acceptIncident", h.incidentService.AcceptIncident)
}

// @Summary Complete an incident
// @Description The responder who accepted the incident marks it completed. Admins are notified.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path int true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 403 {object} map[string]string "Accepted by another responder"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Router /incidents/{id}/complete [post]
func (h *Handler) completeIncident(c *gin.Context) {
	h.transition(c, "completeIncident", h.incidentService.CompleteIncident)
}

// @Summary Resolve an incident
// @Description Alternative terminal state, same rules as complete.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path int true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 403 {object} map[string]string "Accepted by another responder"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Router /incidents/{id}/resolve [post]
func (h *Handler) resolveIncident(c *gin.Context) {
	h.transition(c, "resolveIncident", h.incidentService.ResolveIncident)
}

type transitionFunc func(ctx context.Context, p models.Principal, id int64) (*models.Incident, error)

func (h *Handler) transition(c *gin.Context, method string, fn transitionFunc) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", method).WithField("id", id)

	incident, err := fn(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get incident statistics
// @Description Incident counts grouped by status. Admin only.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	counts, err := h.incidentService.IncidentStats(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, StatusCountsToResponse(counts))
}

// @Summary Export incidents
// @Description XLSX workbook with every incident and a status summary. Admin only.
// @Tags Admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Success 200 {file} file
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/incidents/export [get]
func (h *Handler) exportIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "exportIncidents")

	data, err := h.incidentService.ExportIncidents(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	filename := fmt.Sprintf("incidents-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentTypeXLSX, data)
}

// @Summary Analyze an image
// @Description Suggests an incident type from the colors of an uploaded image. Always answers 200; on failure the result is a fallback asking for a manual description.
// @Tags Incidents
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Image to analyze"
// @Success 200 {object} AnalysisResponse
// @Router /analyze-image [post]
func (h *Handler) analyzeImage(c *gin.Context) {
	log := h.logger.WithField("method", "analyzeImage")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+multipartOverhead)
	form, err := c.MultipartForm()
	if err != nil {
		log.WithError(err).Warn("Failed to parse multipart form")
		c.JSON(http.StatusOK, AnalysisResponse{vision.Fallback("no image uploaded")})
		return
	}
	defer form.RemoveAll()

	image, err := readImage(form, h.cfg.MaxUploadBytes)
	switch {
	case errors.Is(err, errImageTooLarge):
		c.JSON(http.StatusOK, AnalysisResponse{vision.Fallback("image is too large")})
		return
	case err != nil:
		log.WithError(err).Warn("Rejected uploaded image")
		c.JSON(http.StatusOK, AnalysisResponse{vision.Fallback("invalid image file")})
		return
	case image == nil:
		c.JSON(http.StatusOK, AnalysisResponse{vision.Fallback("no image uploaded")})
		return
	}

	result := h.classifier.Classify(bytes.NewReader(image.data))
	log.WithFields(logrus.Fields{
		"incident_type": result.IncidentType,
		"confidence":    result.Confidence,
		"fallback":      result.Fallback,
	}).Info("Image analyzed")
	c.JSON(http.StatusOK, AnalysisResponse{result})
}
