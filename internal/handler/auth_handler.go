package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Logout(ctx context.Context, claims *models.JWTClaims) error
	Me(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error)
}

type viewStateForgetter interface {
	ForgetSession(ctx context.Context, sessionID string)
}

// SessionCookieConfig controls the browser session cookie.
type SessionCookieConfig struct {
	Secure    bool
	LoginPath string
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	views   viewStateForgetter
	cookie  SessionCookieConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, views viewStateForgetter, cookie SessionCookieConfig) *AuthHandler {
	if cookie.LoginPath == "" {
		cookie.LoginPath = "/login"
	}
	return &AuthHandler{service: svc, views: views, cookie: cookie}
}

// Login godoc
// @Summary Authenticate operator
// @Description Authenticate an operator by email and password and start a dashboard session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setCookie(c, res.AccessToken, int(res.ExpiresIn))
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary End the current session
// @Description Revoke the session token, stop the live feed when it was the last session and clear the cookie
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims); err != nil {
		response.Error(c, err)
		return
	}
	if h.views != nil {
		h.views.ForgetSession(c.Request.Context(), claims.SessionID())
	}

	h.setCookie(c, "", -1)
	response.JSON(c, http.StatusOK, gin.H{"redirect": h.cookie.LoginPath}, nil)
}

// Me godoc
// @Summary Get current operator
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.service.Me(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", "", h.cookie.Secure, true)
}
