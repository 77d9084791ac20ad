package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread notifications"
// @Success 200 {array} NotificationResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /notifications [get]
func (h *Handler) listNotifications(c *gin.Context) {
	log := h.logger.WithField("method", "listNotifications")
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	list, err := h.notificationService.ListNotifications(c.Request.Context(), principalFrom(c), unreadOnly)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToNotificationResponses(list))
}

// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UnreadCountResponse
// @Router /notifications/unread-count [get]
func (h *Handler) unreadCount(c *gin.Context) {
	log := h.logger.WithField("method", "unreadCount")

	n, err := h.notificationService.UnreadCount(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{Count: n})
}

// @Summary Mark a notification read
// @Description Idempotent. Notifications of other users are reported as not found.
// @Tags Notifications
// @Security BearerAuth
// @Param id path int true "Notification ID"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid notification ID"
// @Failure 404 {object} map[string]string "Notification not found"
// @Router /notifications/{id}/read [post]
func (h *Handler) markNotificationRead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification ID"})
		return
	}
	log := h.logger.WithField("method", "markNotificationRead").WithField("id", id)

	if err := h.notificationService.MarkRead(c.Request.Context(), principalFrom(c), id); err != nil {
		h.respondError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MarkAllReadResponse
// @Router /notifications/read-all [post]
func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	log := h.logger.WithField("method", "markAllNotificationsRead")

	n, err := h.notificationService.MarkAllRead(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, MarkAllReadResponse{Updated: n})
}
