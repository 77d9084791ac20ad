package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shenikar/alerto360/internal/models"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)

	// Все остальное только с токеном
	private := api.Group("", AuthMiddleware(h.userService, h.logger))

	users := private.Group("/users")
	{
		users.GET("/me", h.getProfile)
		users.PATCH("/me", h.updateProfile)
	}

	incidents := private.Group("/incidents")
	{
		incidents.POST("", RequireRole(models.RoleCitizen), h.createIncident)
		incidents.GET("", h.listIncidents)
		incidents.GET("/stats", RequireRole(models.RoleAdmin), h.getStats)
		incidents.GET("/:id", h.getIncident)
		incidents.GET("/:id/image", h.getIncidentImage)
		incidents.POST("/:id/accept", RequireRole(models.RoleResponder), h.acceptIncident)
		incidents.POST("/:id/complete", RequireRole(models.RoleResponder), h.completeIncident)
		incidents.POST("/:id/resolve", RequireRole(models.RoleResponder), h.resolveIncident)
	}

	private.POST("/analyze-image", h.analyzeImage)

	notifications := private.Group("/notifications")
	{
		notifications.GET("", h.listNotifications)
		notifications.GET("/unread-count", h.unreadCount)
		notifications.POST("/read-all", h.markAllNotificationsRead)
		notifications.POST("/:id/read", h.markNotificationRead)
	}

	admin := private.Group("/admin", RequireRole(models.RoleAdmin))
	{
		admin.POST("/responders", h.createResponder)
		admin.GET("/responders", h.listResponders)
		admin.PATCH("/responders/:id", h.updateResponder)
		admin.DELETE("/responders/:id", h.deleteResponder)
		admin.GET("/incidents/export", h.exportIncidents)
	}
}
