package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/response"
)

// RequireRoles allows the request only when the operator holds one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "operator role cannot perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireWriter restricts mutations to admins.
func RequireWriter() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}
