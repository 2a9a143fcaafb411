package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

// CacheRepository stores JSON payloads under namespaced keys.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ViewStateCache keeps each session's filter, sort and page between requests.
// A nil or disabled cache behaves as a permanent miss.
type ViewStateCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewViewStateCache builds a ViewStateCache. ttl defaults to 12h.
func NewViewStateCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *ViewStateCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewStateCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

func viewStateKey(sessionID string) string {
	return "view:" + sessionID
}

// Enabled indicates whether view state survives between requests.
func (c *ViewStateCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Load returns the stored state of a session. The bool reports a hit.
func (c *ViewStateCache) Load(ctx context.Context, sessionID string) (ViewState, bool, error) {
	var state ViewState
	if !c.Enabled() || sessionID == "" {
		return state, false, nil
	}
	start := time.Now()
	err := c.repo.Get(ctx, viewStateKey(sessionID), &state)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return ViewState{}, false, nil
		}
		c.logger.Warn("view state load failed", zap.String("session", sessionID), zap.Error(err))
		return ViewState{}, false, err
	}
	state.Query = NormalizeQuery(state.Query)
	return state, true, nil
}

// Save stores the state of a session for the configured TTL.
func (c *ViewStateCache) Save(ctx context.Context, sessionID string, state ViewState) error {
	if !c.Enabled() || sessionID == "" {
		return nil
	}
	start := time.Now()
	err := c.repo.Set(ctx, viewStateKey(sessionID), state, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("view state save failed", zap.String("session", sessionID), zap.Error(err))
	}
	return err
}

// Forget drops the state of a session, typically on logout.
func (c *ViewStateCache) Forget(ctx context.Context, sessionID string) error {
	if !c.Enabled() || sessionID == "" {
		return nil
	}
	if err := c.repo.Delete(ctx, viewStateKey(sessionID)); err != nil {
		c.logger.Warn("view state forget failed", zap.String("session", sessionID), zap.Error(err))
		return err
	}
	return nil
}
