package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/repository"
)

type presenceSource interface {
	Watch(ctx context.Context, id string, fn repository.PresenceFunc) (*repository.Subscription, error)
	WatchAll(ctx context.Context, fn repository.OnlineCountFunc) (*repository.Subscription, error)
}

type presenceWatch struct {
	sub *repository.Subscription
}

// PresenceTracker keeps one live presence watch per tracked record id and the global online count.
type PresenceTracker struct {
	source  presenceSource
	metrics *MetricsService
	logger  *zap.Logger

	reconcileMu sync.Mutex

	mu        sync.RWMutex
	watches   map[string]*presenceWatch
	statuses  map[string]models.PresenceStatus
	online    int
	aggregate *repository.Subscription
}

// NewPresenceTracker constructs a tracker over the given presence source.
func NewPresenceTracker(source presenceSource, metrics *MetricsService, logger *zap.Logger) *PresenceTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceTracker{
		source:   source,
		metrics:  metrics,
		logger:   logger,
		watches:  make(map[string]*presenceWatch),
		statuses: make(map[string]models.PresenceStatus),
	}
}

// Reconcile opens watches for ids not yet tracked and closes watches for ids no longer present.
func (t *PresenceTracker) Reconcile(ids []string) {
	t.reconcileMu.Lock()
	defer t.reconcileMu.Unlock()

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			wanted[id] = struct{}{}
		}
	}

	var stale []*presenceWatch
	var added []string

	t.mu.Lock()
	for id, w := range t.watches {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, w)
			delete(t.watches, id)
			delete(t.statuses, id)
		}
	}
	// ids whose watch failed to open keep an offline status without a watch.
	for id := range t.statuses {
		if _, ok := wanted[id]; !ok {
			delete(t.statuses, id)
		}
	}
	for id := range wanted {
		if _, ok := t.watches[id]; !ok {
			added = append(added, id)
		}
	}
	t.mu.Unlock()

	for _, w := range stale {
		w.sub.Close()
	}
	for _, id := range added {
		t.open(id)
	}

	t.mu.RLock()
	open := len(t.watches)
	t.mu.RUnlock()
	t.metrics.SetPresenceWatches(open)
}

func (t *PresenceTracker) open(id string) {
	w := &presenceWatch{}

	t.mu.Lock()
	t.watches[id] = w
	t.mu.Unlock()

	sub, err := t.source.Watch(context.Background(), id, func(raw []byte, err error) {
		status := models.ResolvePresence(raw)
		if err != nil {
			t.logger.Debug("presence watch error", zap.String("id", id), zap.Error(err))
			status = models.PresenceOffline
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.watches[id] != w {
			return
		}
		t.statuses[id] = status
	})
	if err != nil {
		t.logger.Warn("open presence watch", zap.String("id", id), zap.Error(err))
		t.mu.Lock()
		if t.watches[id] == w {
			delete(t.watches, id)
			t.statuses[id] = models.PresenceOffline
		}
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	if t.watches[id] == w {
		w.sub = sub
		sub = nil
	}
	t.mu.Unlock()
	sub.Close()
}

// StartAggregate begins maintaining the global online count. Calling it again is a no-op.
func (t *PresenceTracker) StartAggregate(ctx context.Context) error {
	t.mu.RLock()
	running := t.aggregate != nil
	t.mu.RUnlock()
	if running {
		return nil
	}

	sub, err := t.source.WatchAll(ctx, func(count int, err error) {
		if err != nil {
			t.logger.Warn("online count refresh failed", zap.Error(err))
			return
		}
		t.mu.Lock()
		t.online = count
		t.mu.Unlock()
		t.metrics.SetOnlineUsers(count)
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.aggregate != nil {
		t.mu.Unlock()
		sub.Close()
		return nil
	}
	t.aggregate = sub
	t.mu.Unlock()
	return nil
}

// Status returns the presence of id; untracked ids are unknown.
func (t *PresenceTracker) Status(id string) models.PresenceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if status, ok := t.statuses[id]; ok {
		return status
	}
	return models.PresenceUnknown
}

// Statuses returns a copy of the per-id presence map.
func (t *PresenceTracker) Statuses() map[string]models.PresenceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.PresenceStatus, len(t.statuses))
	for id, status := range t.statuses {
		out[id] = status
	}
	return out
}

// OnlineCount returns the last computed global online count.
func (t *PresenceTracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online
}

// Tracked returns the number of open per-id watches.
func (t *PresenceTracker) Tracked() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.watches)
}

// Close cancels every watch and the aggregate subscription. The tracker can be reused afterwards.
func (t *PresenceTracker) Close() {
	t.reconcileMu.Lock()
	defer t.reconcileMu.Unlock()

	t.mu.Lock()
	watches := t.watches
	aggregate := t.aggregate
	t.watches = make(map[string]*presenceWatch)
	t.statuses = make(map[string]models.PresenceStatus)
	t.aggregate = nil
	t.online = 0
	t.mu.Unlock()

	for _, w := range watches {
		w.sub.Close()
	}
	aggregate.Close()
	t.metrics.SetPresenceWatches(0)
}
