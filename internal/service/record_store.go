package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/repository"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

type recordFeed interface {
	Subscribe(ctx context.Context, onSnapshot repository.SnapshotFunc, onError repository.FeedErrorFunc) (*repository.Subscription, error)
}

type presenceReconciler interface {
	Reconcile(ids []string)
	StartAggregate(ctx context.Context) error
	Close()
}

// StoreState is a consistent view of the record store at one instant.
type StoreState struct {
	Records   []models.Record
	Stats     models.RecordStats
	Loading   bool
	Active    bool
	UpdatedAt time.Time
	LastError string
}

// RecordStore holds the live, in-memory snapshot of visible records.
type RecordStore struct {
	feed     recordFeed
	presence presenceReconciler
	hub      *NotificationHub
	metrics  *MetricsService
	logger   *zap.Logger

	// applyMu serialises snapshot application against presence teardown.
	applyMu sync.Mutex

	mu         sync.RWMutex
	records    []models.Record
	stats      models.RecordStats
	loading    bool
	active     bool
	baseline   bool
	generation uint64
	sub        *repository.Subscription
	updatedAt  time.Time
	lastErr    string
}

// RecordStoreParams groups the store dependencies.
type RecordStoreParams struct {
	Feed     recordFeed
	Presence presenceReconciler
	Hub      *NotificationHub
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// NewRecordStore constructs an inactive record store.
func NewRecordStore(params RecordStoreParams) *RecordStore {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{
		feed:     params.Feed,
		presence: params.Presence,
		hub:      params.Hub,
		metrics:  params.Metrics,
		logger:   logger,
	}
}

// Activate opens the live subscription. Activating an active store is a no-op.
func (s *RecordStore) Activate() error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.records = nil
	s.stats = models.RecordStats{}
	s.baseline = false
	return s.openLocked()
}

// openLocked starts a new feed generation. It must be called with s.mu held and releases it.
func (s *RecordStore) openLocked() error {
	s.generation++
	gen := s.generation
	s.active = true
	s.loading = true
	s.lastErr = ""
	s.mu.Unlock()

	sub, err := s.feed.Subscribe(context.Background(), s.snapshotHandler(gen), s.errorHandler(gen))
	if err != nil {
		s.mu.Lock()
		current := s.generation == gen
		if current {
			s.active = false
			s.loading = false
			s.lastErr = err.Error()
		}
		s.mu.Unlock()
		if current && s.presence != nil {
			s.applyMu.Lock()
			s.presence.Close()
			s.applyMu.Unlock()
		}
		s.metrics.ObserveFeedError()
		s.logger.Error("open record feed", zap.Error(err))
		s.hub.Toast(models.ToastError, "Feed unavailable", "Could not load notifications")
		return appErrors.Wrap(err, appErrors.ErrFeedUnavailable.Code, appErrors.ErrFeedUnavailable.Status, "failed to open record feed")
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	if s.presence != nil {
		if err := s.presence.StartAggregate(context.Background()); err != nil {
			s.logger.Warn("start online count", zap.Error(err))
		}
	}

	s.logger.Info("record store activated")
	return nil
}

// Deactivate cancels the live subscription. Late callbacks from any earlier subscription are discarded.
func (s *RecordStore) Deactivate() {
	s.mu.Lock()
	wasActive := s.active
	s.generation++
	s.active = false
	s.loading = false
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	sub.Close()
	if s.presence != nil {
		s.applyMu.Lock()
		s.presence.Close()
		s.applyMu.Unlock()
	}
	if wasActive {
		s.logger.Info("record store deactivated")
	}
}

// Refresh re-opens the live subscription, keeping the current snapshot as the comparison
// baseline until the next emission.
func (s *RecordStore) Refresh() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrSessionRequired, "record store is not active")
	}
	sub := s.sub
	s.sub = nil
	err := s.openLocked()
	sub.Close()
	return err
}

func (s *RecordStore) snapshotHandler(gen uint64) repository.SnapshotFunc {
	return func(entries []models.SnapshotEntry) {
		s.applyMu.Lock()
		defer s.applyMu.Unlock()

		visible := make([]models.Record, 0, len(entries))
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.Hidden {
				continue
			}
			visible = append(visible, entry.Record)
			ids = append(ids, entry.ID)
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		var events []sensitiveEvent
		if s.baseline {
			events = detectSensitive(s.records, visible)
		}
		stats := models.ComputeRecordStats(visible)
		s.records = visible
		s.stats = stats
		s.loading = false
		s.baseline = true
		s.lastErr = ""
		s.updatedAt = time.Now().UTC()
		s.mu.Unlock()

		if s.presence != nil {
			s.presence.Reconcile(ids)
		}
		s.metrics.ObserveSnapshot(stats)
		for _, ev := range events {
			s.metrics.ObserveSensitiveEvent(ev.kind)
			s.hub.Publish(models.DashboardEvent{Type: models.EventSound, Kind: ev.kind, RecordID: ev.recordID})
		}
		s.hub.Publish(models.DashboardEvent{Type: models.EventSnapshot, Stats: &stats})
	}
}

func (s *RecordStore) errorHandler(gen uint64) repository.FeedErrorFunc {
	return func(err error) {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		s.loading = false
		s.lastErr = err.Error()
		s.mu.Unlock()

		s.metrics.ObserveFeedError()
		s.logger.Error("record feed error", zap.Error(err))
		s.hub.Toast(models.ToastError, "Feed error", "An error occurred while fetching notifications")
	}
}

type sensitiveEvent struct {
	kind     string
	recordID string
}

// detectSensitive reports, per kind, the first record whose card or personal fields became
// non-empty since prev.
func detectSensitive(prev, next []models.Record) []sensitiveEvent {
	hadCard := make(map[string]bool, len(prev))
	hadPersonal := make(map[string]bool, len(prev))
	for _, rec := range prev {
		hadCard[rec.ID] = rec.HasCard()
		hadPersonal[rec.ID] = rec.HasPersonal()
	}

	var events []sensitiveEvent
	var cardSeen, personalSeen bool
	for _, rec := range next {
		if !cardSeen && rec.HasCard() && !hadCard[rec.ID] {
			events = append(events, sensitiveEvent{kind: models.SensitiveCard, recordID: rec.ID})
			cardSeen = true
		}
		if !personalSeen && rec.HasPersonal() && !hadPersonal[rec.ID] {
			events = append(events, sensitiveEvent{kind: models.SensitivePersonal, recordID: rec.ID})
			personalSeen = true
		}
		if cardSeen && personalSeen {
			break
		}
	}
	return events
}

// State returns a copy of the current store state.
func (s *RecordStore) State() StoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]models.Record, len(s.records))
	copy(records, s.records)
	return StoreState{
		Records:   records,
		Stats:     s.stats,
		Loading:   s.loading,
		Active:    s.active,
		UpdatedAt: s.updatedAt,
		LastError: s.lastErr,
	}
}

// Snapshot returns a copy of the visible records.
func (s *RecordStore) Snapshot() []models.Record {
	return s.State().Records
}

// IDs returns the ids of the visible records in snapshot order.
func (s *RecordStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		ids = append(ids, rec.ID)
	}
	return ids
}

// Find returns the record with id.
func (s *RecordStore) Find(id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.Record{}, false
}

// Patch applies fn to the record with id. It reports whether the record was found.
func (s *RecordStore) Patch(id string, fn func(*models.Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			fn(&s.records[i])
			s.stats = models.ComputeRecordStats(s.records)
			return true
		}
	}
	return false
}

// Remove drops the listed ids from the snapshot and returns how many were removed.
func (s *RecordStore) Remove(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	kept := make([]models.Record, 0, len(s.records))
	for _, rec := range s.records {
		if _, ok := drop[rec.ID]; ok {
			continue
		}
		kept = append(kept, rec)
	}
	removed := len(s.records) - len(kept)
	s.records = kept
	s.stats = models.ComputeRecordStats(kept)
	s.mu.Unlock()
	return removed
}
