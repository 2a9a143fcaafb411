package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func withMeta(c *gin.Context) map[string]interface{} {
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta
}
