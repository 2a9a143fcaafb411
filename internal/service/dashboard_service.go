package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

type storeReader interface {
	State() StoreState
}

type presenceReader interface {
	Status(id string) models.PresenceStatus
	OnlineCount() int
}

// DashboardServiceConfig tunes list rendering.
type DashboardServiceConfig struct {
	PageSize int
}

// DashboardService renders the live snapshot through the view pipeline and keeps
// each session's view state in the cache.
type DashboardService struct {
	store    storeReader
	presence presenceReader
	views    *ViewStateCache
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Store    storeReader
	Presence presenceReader
	Views    *ViewStateCache
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		store:    params.Store,
		presence: params.Presence,
		views:    params.Views,
		metrics:  params.Metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// ViewState loads the session's view state, falling back to defaults. The bool reports a cache hit.
func (s *DashboardService) ViewState(ctx context.Context, sessionID string) (ViewState, bool) {
	cached, hit, err := s.views.Load(ctx, sessionID)
	if err != nil || !hit {
		return NewViewState(s.cfg.PageSize), false
	}
	return cached, true
}

// List applies the query on top of the session's view state and renders one page.
func (s *DashboardService) List(ctx context.Context, sessionID string, q dto.NotificationListQuery) (*dto.ViewResult, bool, error) {
	state, hit := s.ViewState(ctx, sessionID)
	before := state.Query

	if q.Filter != nil {
		state.SetFilter(models.FilterType(*q.Filter))
	}
	if q.Search != nil {
		state.SetSearch(*q.Search)
	}
	if q.SortBy != nil || q.SortOrder != nil {
		key, order := state.Query.SortBy, state.Query.SortOrder
		if q.SortBy != nil {
			key = models.SortKey(*q.SortBy)
		}
		if q.SortOrder != nil {
			order = models.SortOrder(*q.SortOrder)
		}
		state.SetSort(key, order)
	}
	if q.PageSize != nil && *q.PageSize != state.Query.PageSize {
		state.Query.PageSize = *q.PageSize
		state.Query.Page = 1
	}

	snapshot := s.store.State()
	records := snapshot.Records
	var lookup PresenceLookup
	if s.presence != nil {
		lookup = s.presence.Status
	}

	filtered := len(FilterRecords(records, lookup, state.Query.Filter, state.Query.Search))
	page := state.Query.Page
	// a changed filter or search always lands on the first page.
	reset := state.Query.Filter != before.Filter || state.Query.Search != before.Search
	if q.Page != nil && !reset {
		page = *q.Page
	}
	state.SetPage(page, TotalPages(filtered, state.Query.PageSize))

	result := BuildView(records, lookup, state.Query)

	if err := s.views.Save(ctx, sessionID, state); err != nil {
		s.logger.Debug("persist view state", zap.String("session", sessionID), zap.Error(err))
	}
	return &result, hit, nil
}

// Stats returns the snapshot counters with presence and instrumentation details.
func (s *DashboardService) Stats(ctx context.Context) dto.StatsResponse {
	snapshot := s.store.State()
	resp := dto.StatsResponse{
		RecordStats: snapshot.Stats,
		Loading:     snapshot.Loading,
		Active:      snapshot.Active,
		LastError:   snapshot.LastError,
		StepOptions: models.StepOptions,
	}
	if s.presence != nil {
		resp.OnlineUsers = s.presence.OnlineCount()
	}
	if !snapshot.UpdatedAt.IsZero() {
		updated := snapshot.UpdatedAt
		resp.UpdatedAt = &updated
	}
	if s.metrics != nil {
		system := s.metrics.Snapshot()
		resp.System = &system
	}
	return resp
}

// ForgetSession drops the cached view state of a session.
func (s *DashboardService) ForgetSession(ctx context.Context, sessionID string) {
	if err := s.views.Forget(ctx, sessionID); err != nil {
		s.logger.Debug("forget view state", zap.String("session", sessionID), zap.Error(err))
	}
}

// AllMatching returns every record of the current snapshot matching filter and search in view order.
func (s *DashboardService) AllMatching(filter models.FilterType, search string) []dto.NotificationView {
	snapshot := s.store.State()
	var lookup PresenceLookup
	if s.presence != nil {
		lookup = s.presence.Status
	}
	q := models.ViewQuery{Filter: filter, Search: search, PageSize: math.MaxInt32}
	return BuildView(snapshot.Records, lookup, q).Items
}
