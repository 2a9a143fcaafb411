package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/response"
)

type notificationReader interface {
	List(ctx context.Context, sessionID string, q dto.NotificationListQuery) (*dto.ViewResult, bool, error)
	Stats(ctx context.Context) dto.StatsResponse
}

type notificationMutator interface {
	SetFlagColor(ctx context.Context, id string, color *models.FlagColor) (*models.Record, error)
	SetStep(ctx context.Context, id string, step int) (*models.Record, error)
	SetStatus(ctx context.Context, id, status string) (*models.Record, error)
	SoftDelete(ctx context.Context, id string) error
	SoftDeleteAll(ctx context.Context) (int, error)
}

type feedRefresher interface {
	Refresh() error
}

type eventSource interface {
	Subscribe() (<-chan models.DashboardEvent, func())
}

const defaultKeepAlive = 25 * time.Second

// NotificationHandler exposes the live notification list, its event stream and record actions.
type NotificationHandler struct {
	reader    notificationReader
	mutator   notificationMutator
	refresher feedRefresher
	events    eventSource
	keepAlive time.Duration
}

// NotificationHandlerParams groups handler dependencies.
type NotificationHandlerParams struct {
	Reader    notificationReader
	Mutator   notificationMutator
	Refresher feedRefresher
	Events    eventSource
	KeepAlive time.Duration
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(params NotificationHandlerParams) *NotificationHandler {
	keepAlive := params.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &NotificationHandler{
		reader:    params.Reader,
		mutator:   params.Mutator,
		refresher: params.Refresher,
		events:    params.Events,
		keepAlive: keepAlive,
	}
}

// List godoc
// @Summary List notifications
// @Description Filter, search, sort and paginate the live record snapshot. Omitted parameters keep the session's previous view.
// @Tags Notifications
// @Produce json
// @Param filter query string false "all, hasCard or online"
// @Param search query string false "Search term"
// @Param sort_by query string false "date, status or country"
// @Param sort_order query string false "asc or desc"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	var query dto.NotificationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}

	result, hit, err := h.reader.List(c.Request.Context(), sessionID(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, hit)
	meta := withMeta(c)
	meta["query"] = result.Query
	pagination := result.Pagination
	response.JSON(c, http.StatusOK, result.Items, &pagination, meta)
}

// Stats godoc
// @Summary Notification statistics
// @Description Totals, card count, approved and pending counts, online users and feed status
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/stats [get]
func (h *NotificationHandler) Stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.reader.Stats(c.Request.Context()), nil)
}

// Events godoc
// @Summary Dashboard event stream
// @Description Server-sent events carrying toasts, sensitive-data sound cues and snapshot counters
// @Tags Notifications
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /notifications/events [get]
func (h *NotificationHandler) Events(c *gin.Context) {
	if h.events == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "event stream not configured"))
		return
	}
	events, cancel := h.events.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	stats := h.reader.Stats(c.Request.Context())
	c.SSEvent(string(models.EventSnapshot), models.DashboardEvent{Type: models.EventSnapshot, Stats: &stats.RecordStats, At: time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// Refresh godoc
// @Summary Re-open the live feed
// @Tags Notifications
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /notifications/refresh [post]
func (h *NotificationHandler) Refresh(c *gin.Context) {
	if err := h.refresher.Refresh(); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"refreshing": true})
}

// SetFlag godoc
// @Summary Set or clear the flag colour
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.SetFlagRequest true "Flag colour, null clears"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /notifications/{id}/flag [patch]
func (h *NotificationHandler) SetFlag(c *gin.Context) {
	var req dto.SetFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid flag payload"))
		return
	}
	var color *models.FlagColor
	if req.Color != nil {
		value := models.FlagColor(strings.TrimSpace(*req.Color))
		color = &value
	}
	record, err := h.mutator.SetFlagColor(c.Request.Context(), c.Param("id"), color)
	h.respondRecord(c, record, err)
}

// SetStep godoc
// @Summary Move a record to a workflow step
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.SetStepRequest true "Step"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /notifications/{id}/step [patch]
func (h *NotificationHandler) SetStep(c *gin.Context) {
	var req dto.SetStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid step payload"))
		return
	}
	record, err := h.mutator.SetStep(c.Request.Context(), c.Param("id"), *req.Step)
	h.respondRecord(c, record, err)
}

// SetStatus godoc
// @Summary Approve or reject a record
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.SetStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /notifications/{id}/status [patch]
func (h *NotificationHandler) SetStatus(c *gin.Context) {
	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid status payload"))
		return
	}
	record, err := h.mutator.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	h.respondRecord(c, record, err)
}

// Delete godoc
// @Summary Hide a record
// @Tags Notifications
// @Param id path string true "Record ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	if err := h.mutator.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteAll godoc
// @Summary Hide every loaded record
// @Description Hides all records in one atomic batch; nothing is hidden when the batch fails
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /notifications [delete]
func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	hidden, err := h.mutator.SoftDeleteAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BulkHideResponse{Hidden: hidden}, nil)
}

func (h *NotificationHandler) respondRecord(c *gin.Context, record *models.Record, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if record == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

func sessionID(c *gin.Context) string {
	return claimsFromContext(c).SessionID()
}
