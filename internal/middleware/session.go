package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/logger"
	"github.com/noah-isme/notifications-dashboard-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing JWT claims.
	ContextUserKey = "currentUser"
	// SessionCookie carries the access token for browser clients and event streams.
	SessionCookie = "dashboard_session"
)

type tokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error)
}

type sessionToucher interface {
	Touch(ctx context.Context, claims *models.JWTClaims) error
}

// RequireSession rejects requests without a live operator session. Browsers navigating to a
// page are redirected to loginPath; API clients receive 401 with the redirect target in meta.
func RequireSession(auth tokenValidator, guard sessionToucher, loginPath string) gin.HandlerFunc {
	if loginPath == "" {
		loginPath = "/login"
	}
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			denySession(c, err, loginPath)
			return
		}

		claims, err := auth.ValidateToken(c.Request.Context(), token)
		if err != nil {
			denySession(c, err, loginPath)
			return
		}

		if guard != nil {
			if err := guard.Touch(c.Request.Context(), claims); err != nil {
				_ = c.Error(err)
			}
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.ContextOperatorKey, claims.UserID)
		c.Next()
	}
}

// Claims returns the session claims attached by RequireSession.
func Claims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}

func extractToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", appErrors.Clone(appErrors.ErrSessionRequired, "sign in required")
}

func denySession(c *gin.Context, err error, loginPath string) {
	if wantsHTML(c.Request) {
		target := loginPath
		if c.Request.Method == http.MethodGet {
			target += "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
		}
		c.Redirect(http.StatusFound, target)
		c.Abort()
		return
	}
	response.Error(c, err, map[string]interface{}{"redirect": loginPath})
	c.Abort()
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") != "" {
		return false
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}
