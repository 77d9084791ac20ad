package v1

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/service"
	"github.com/sirupsen/logrus"
)

const principalKey = "principal"

// AuthMiddleware - middleware для аутентификации по JWT из заголовка Authorization: Bearer
func AuthMiddleware(users service.UserService, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			log.Warn("Bearer token missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		principal, err := users.ParseToken(strings.TrimSpace(token))
		if err != nil {
			log.WithError(err).Warn("Invalid bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole пропускает только пользователей с одной из ролей
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, principalFrom(c).Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": models.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// principalFrom возвращает пользователя, положенного AuthMiddleware
func principalFrom(c *gin.Context) models.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}
	}
	p, _ := v.(models.Principal)
	return p
}
