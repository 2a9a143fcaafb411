package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

type validatorStub struct {
	tokens map[string]*models.JWTClaims
}

func (v validatorStub) ValidateToken(_ context.Context, token string) (*models.JWTClaims, error) {
	if claims, ok := v.tokens[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token revoked")
}

type toucherStub struct {
	touched []string
	err     error
}

func (g *toucherStub) Touch(_ context.Context, claims *models.JWTClaims) error {
	g.touched = append(g.touched, claims.UserID)
	return g.err
}

func sessionRouter(guard sessionToucher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := validatorStub{tokens: map[string]*models.JWTClaims{
		"admin-token":  {UserID: "op-1", Role: models.RoleAdmin},
		"viewer-token": {UserID: "op-2", Role: models.RoleViewer},
	}}
	router := gin.New()
	secured := router.Group("/api", RequireSession(auth, guard, "/signin"))
	secured.GET("/notifications", func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.UserID)
	})
	secured.DELETE("/notifications", RequireWriter(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRequireSessionAcceptsBearerAndCookie(t *testing.T) {
	guard := &toucherStub{}
	router := sessionRouter(guard)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-1", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "viewer-token"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-2", rec.Body.String())

	assert.Equal(t, []string{"op-1", "op-2"}, guard.touched)
}

func TestRequireSessionRejectsAPIClients(t *testing.T) {
	router := sessionRouter(nil)

	cases := map[string]string{
		"missing":   "",
		"malformed": "Token admin-token",
		"revoked":   "Bearer stale",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			req.Header.Set("Accept", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body struct {
				Error *appErrors.Error       `json:"error"`
				Meta  map[string]interface{} `json:"meta"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, "/signin", body.Meta["redirect"])
		})
	}
}

func TestRequireSessionRedirectsBrowsers(t *testing.T) {
	router := sessionRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?filter=online", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/signin?next=%2Fapi%2Fnotifications%3Ffilter%3Donline", rec.Header().Get("Location"))
}

func TestRequireSessionTouchFailureDoesNotBlock(t *testing.T) {
	router := sessionRouter(&toucherStub{err: errors.New("redis down")})
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireWriterRejectsViewers(t *testing.T) {
	router := sessionRouter(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer viewer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestResponseMetaCollectsEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, true)
	SetMeta(c, "query", "online")
	meta := ExtractMeta(c)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Equal(t, "online", meta["query"])
}
