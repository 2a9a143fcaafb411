package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

type handlerEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newJSONContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) handlerEnvelope {
	t.Helper()
	var env handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func adminClaims() *models.JWTClaims {
	claims := &models.JWTClaims{UserID: "op-1", Role: models.RoleAdmin}
	claims.ID = "sess-1"
	return claims
}

type notificationReaderStub struct {
	result    *dto.ViewResult
	hit       bool
	err       error
	sessionID string
	query     dto.NotificationListQuery
	stats     dto.StatsResponse
}

func (s *notificationReaderStub) List(_ context.Context, sessionID string, q dto.NotificationListQuery) (*dto.ViewResult, bool, error) {
	s.sessionID = sessionID
	s.query = q
	return s.result, s.hit, s.err
}

func (s *notificationReaderStub) Stats(context.Context) dto.StatsResponse {
	return s.stats
}

type notificationMutatorStub struct {
	record  *models.Record
	err     error
	color   *models.FlagColor
	step    int
	status  string
	deleted string
	hidden  int
}

func (s *notificationMutatorStub) SetFlagColor(_ context.Context, id string, color *models.FlagColor) (*models.Record, error) {
	s.color = color
	return s.record, s.err
}

func (s *notificationMutatorStub) SetStep(_ context.Context, id string, step int) (*models.Record, error) {
	s.step = step
	return s.record, s.err
}

func (s *notificationMutatorStub) SetStatus(_ context.Context, id, status string) (*models.Record, error) {
	s.status = status
	return s.record, s.err
}

func (s *notificationMutatorStub) SoftDelete(_ context.Context, id string) error {
	s.deleted = id
	return s.err
}

func (s *notificationMutatorStub) SoftDeleteAll(context.Context) (int, error) {
	return s.hidden, s.err
}

type refresherStub struct{ err error }

func (r refresherStub) Refresh() error { return r.err }

type eventSourceStub struct {
	ch        chan models.DashboardEvent
	cancelled bool
}

func (s *eventSourceStub) Subscribe() (<-chan models.DashboardEvent, func()) {
	return s.ch, func() { s.cancelled = true }
}

func TestNotificationHandlerList(t *testing.T) {
	reader := &notificationReaderStub{
		hit: true,
		result: &dto.ViewResult{
			Items:      []dto.NotificationView{{Record: models.Record{ID: "a"}}},
			Query:      models.ViewQuery{Filter: models.FilterHasCard, Page: 1, PageSize: 10},
			Pagination: models.Pagination{Page: 1, PageSize: 10, TotalCount: 1},
		},
	}
	handler := NewNotificationHandler(NotificationHandlerParams{Reader: reader})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/notifications?filter=hasCard&page=1", nil)
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
	assert.Equal(t, true, env.Meta["view_state_cached"])
	assert.Contains(t, env.Meta, "query")
	assert.Equal(t, "sess-1", reader.sessionID)
	require.NotNil(t, reader.query.Filter)
	assert.Equal(t, "hasCard", *reader.query.Filter)
	assert.Nil(t, reader.query.Search)
}

func TestNotificationHandlerListRejectsBadPage(t *testing.T) {
	handler := NewNotificationHandler(NotificationHandlerParams{Reader: &notificationReaderStub{}})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/notifications?page=0", nil)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationHandlerStats(t *testing.T) {
	reader := &notificationReaderStub{stats: dto.StatsResponse{RecordStats: models.RecordStats{Total: 3, WithCard: 2}, OnlineUsers: 1}}
	handler := NewNotificationHandler(NotificationHandlerParams{Reader: reader})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/notifications/stats", nil)
	handler.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats dto.StatsResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.OnlineUsers)
}

func TestNotificationHandlerSetFlag(t *testing.T) {
	mutator := &notificationMutatorStub{record: &models.Record{ID: "a", FlagColor: models.FlagRed}}
	handler := NewNotificationHandler(NotificationHandlerParams{Mutator: mutator})

	c, rec := newJSONContext(http.MethodPatch, "/api/v1/notifications/a/flag", []byte(`{"color":"red"}`))
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	handler.SetFlag(c)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, mutator.color)
	assert.Equal(t, models.FlagRed, *mutator.color)

	c, rec = newJSONContext(http.MethodPatch, "/api/v1/notifications/a/flag", []byte(`{"color":null}`))
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	handler.SetFlag(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, mutator.color)
}

func TestNotificationHandlerSetStepValidation(t *testing.T) {
	mutator := &notificationMutatorStub{record: &models.Record{ID: "a", Step: 3}}
	handler := NewNotificationHandler(NotificationHandlerParams{Mutator: mutator})

	c, rec := newJSONContext(http.MethodPatch, "/api/v1/notifications/a/step", []byte(`{}`))
	handler.SetStep(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newJSONContext(http.MethodPatch, "/api/v1/notifications/a/step", []byte(`{"step":3}`))
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	handler.SetStep(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, mutator.step)
}

func TestNotificationHandlerSetStatusErrors(t *testing.T) {
	mutator := &notificationMutatorStub{err: appErrors.ErrWriteRejected}
	handler := NewNotificationHandler(NotificationHandlerParams{Mutator: mutator})

	c, rec := newJSONContext(http.MethodPatch, "/api/v1/notifications/a/status", []byte(`{"status":"pending"}`))
	handler.SetStatus(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newJSONContext(http.MethodPatch, "/api/v1/notifications/a/status", []byte(`{"status":"approved"}`))
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	handler.SetStatus(c)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "WRITE_REJECTED", decodeEnvelope(t, rec).Error.Code)
}

func TestNotificationHandlerDelete(t *testing.T) {
	mutator := &notificationMutatorStub{hidden: 4}
	handler := NewNotificationHandler(NotificationHandlerParams{Mutator: mutator})

	c, rec := newJSONContext(http.MethodDelete, "/api/v1/notifications/a", nil)
	c.Params = gin.Params{{Key: "id", Value: "a"}}
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "a", mutator.deleted)

	c, rec = newJSONContext(http.MethodDelete, "/api/v1/notifications", nil)
	handler.DeleteAll(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var body dto.BulkHideResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, 4, body.Hidden)

	mutator.err = appErrors.ErrNotFound
	c, rec = newJSONContext(http.MethodDelete, "/api/v1/notifications/zzz", nil)
	handler.Delete(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationHandlerRefresh(t *testing.T) {
	handler := NewNotificationHandler(NotificationHandlerParams{Refresher: refresherStub{}})
	c, rec := newJSONContext(http.MethodPost, "/api/v1/notifications/refresh", nil)
	handler.Refresh(c)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	handler = NewNotificationHandler(NotificationHandlerParams{Refresher: refresherStub{err: appErrors.ErrFeedUnavailable}})
	c, rec = newJSONContext(http.MethodPost, "/api/v1/notifications/refresh", nil)
	handler.Refresh(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNotificationHandlerEventsStream(t *testing.T) {
	source := &eventSourceStub{ch: make(chan models.DashboardEvent)}
	reader := &notificationReaderStub{stats: dto.StatsResponse{RecordStats: models.RecordStats{Total: 2}}}
	handler := NewNotificationHandler(NotificationHandlerParams{Reader: reader, Events: source, KeepAlive: time.Hour})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/notifications/events", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Events(c)
	}()

	source.ch <- models.DashboardEvent{Type: models.EventSound, Kind: models.SensitiveCard, RecordID: "b"}
	close(source.ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not stop after the source closed")
	}

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Index(body, "event:snapshot") < strings.Index(body, "event:sound"))
	assert.Contains(t, body, `"recordId":"b"`)
	assert.True(t, source.cancelled)
}

func TestNotificationHandlerEventsStopsOnDisconnect(t *testing.T) {
	source := &eventSourceStub{ch: make(chan models.DashboardEvent)}
	handler := NewNotificationHandler(NotificationHandlerParams{Reader: &notificationReaderStub{}, Events: source, KeepAlive: time.Hour})

	c, _ := newJSONContext(http.MethodGet, "/api/v1/notifications/events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Request = c.Request.WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Events(c)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream ignored client disconnect")
	}
	assert.True(t, source.cancelled)
}
