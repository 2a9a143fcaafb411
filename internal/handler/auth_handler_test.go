package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

type authServiceStub struct {
	loginResp *models.LoginResponse
	loginErr  error
	logoutErr error
	loggedOut *models.JWTClaims
	lastLogin models.LoginRequest
}

func (s *authServiceStub) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.lastLogin = req
	return s.loginResp, s.loginErr
}

func (s *authServiceStub) Logout(_ context.Context, claims *models.JWTClaims) error {
	s.loggedOut = claims
	return s.logoutErr
}

func (s *authServiceStub) Me(_ context.Context, claims *models.JWTClaims) (*models.UserInfo, error) {
	return &models.UserInfo{ID: claims.UserID, Role: claims.Role}, nil
}

type forgetterStub struct{ forgotten []string }

func (f *forgetterStub) ForgetSession(_ context.Context, sessionID string) {
	f.forgotten = append(f.forgotten, sessionID)
}

func sessionCookie(t *testing.T, header http.Header) *http.Cookie {
	t.Helper()
	for _, cookie := range (&http.Response{Header: header}).Cookies() {
		if cookie.Name == middleware.SessionCookie {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", middleware.SessionCookie)
	return nil
}

func TestAuthHandlerLoginSetsCookie(t *testing.T) {
	svc := &authServiceStub{loginResp: &models.LoginResponse{AccessToken: "tok", ExpiresIn: 3600}}
	handler := NewAuthHandler(svc, nil, SessionCookieConfig{Secure: true})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/auth/login", []byte(`{"email":"ops@example.com","password":"pw"}`))
	c.Request.Header.Set("User-Agent", "test-agent")
	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-agent", svc.lastLogin.UserAgent)
	cookie := sessionCookie(t, rec.Header())
	assert.Equal(t, "tok", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestAuthHandlerLoginFailure(t *testing.T) {
	handler := NewAuthHandler(&authServiceStub{loginErr: appErrors.ErrInvalidCredentials}, nil, SessionCookieConfig{})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/auth/login", []byte(`{"email":"ops@example.com","password":"bad"}`))
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))

	c, rec = newJSONContext(http.MethodPost, "/api/v1/auth/login", []byte(`{`))
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &authServiceStub{}
	views := &forgetterStub{}
	handler := NewAuthHandler(svc, views, SessionCookieConfig{LoginPath: "/signin"})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/auth/logout", nil)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Logout(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"redirect":"/signin"}`, string(decodeEnvelope(t, rec).Data))
	assert.Equal(t, []string{"sess-1"}, views.forgotten)
	require.NotNil(t, svc.loggedOut)
	assert.Equal(t, "op-1", svc.loggedOut.UserID)
	assert.True(t, sessionCookie(t, rec.Header()).MaxAge < 0)
}

func TestAuthHandlerLogoutFailureKeepsViewState(t *testing.T) {
	views := &forgetterStub{}
	handler := NewAuthHandler(&authServiceStub{logoutErr: appErrors.Wrap(errors.New("redis down"), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "session store unavailable")}, views, SessionCookieConfig{})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/auth/logout", nil)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Logout(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, views.forgotten)
}

func TestAuthHandlerMeRequiresClaims(t *testing.T) {
	handler := NewAuthHandler(&authServiceStub{}, nil, SessionCookieConfig{})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/auth/me", nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newJSONContext(http.MethodGet, "/api/v1/auth/me", nil)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}
