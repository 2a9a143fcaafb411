package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/repository"
)

type presenceWatchStub struct {
	fn  repository.PresenceFunc
	ctx context.Context
}

type presenceSourceStub struct {
	mu        sync.Mutex
	watches   map[string][]*presenceWatchStub
	failIDs   map[string]bool
	aggregate repository.OnlineCountFunc
	aggCtx    context.Context
}

func newPresenceSourceStub() *presenceSourceStub {
	return &presenceSourceStub{watches: make(map[string][]*presenceWatchStub), failIDs: make(map[string]bool)}
}

func (s *presenceSourceStub) Watch(ctx context.Context, id string, fn repository.PresenceFunc) (*repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return nil, errors.New("subscribe refused")
	}
	sub, subCtx := repository.NewSubscription(ctx)
	s.watches[id] = append(s.watches[id], &presenceWatchStub{fn: fn, ctx: subCtx})
	return sub, nil
}

func (s *presenceSourceStub) WatchAll(ctx context.Context, fn repository.OnlineCountFunc) (*repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, subCtx := repository.NewSubscription(ctx)
	s.aggregate = fn
	s.aggCtx = subCtx
	return sub, nil
}

func (s *presenceSourceStub) latest(id string) *presenceWatchStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watches[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (s *presenceSourceStub) opened(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches[id])
}

func TestPresenceTrackerOnlineAndAway(t *testing.T) {
	source := newPresenceSourceStub()
	tracker := NewPresenceTracker(source, nil, zap.NewNop())
	tracker.Reconcile([]string{"b"})

	assert.Equal(t, models.PresenceUnknown, tracker.Status("b"))

	watch := source.latest("b")
	require.NotNil(t, watch)
	watch.fn([]byte(`{"state":"online"}`), nil)
	assert.Equal(t, models.PresenceOnline, tracker.Status("b"))

	watch.fn([]byte(`{"state":"away"}`), nil)
	assert.Equal(t, models.PresenceOffline, tracker.Status("b"))

	watch.fn(nil, nil)
	assert.Equal(t, models.PresenceUnknown, tracker.Status("b"))

	watch.fn(nil, errors.New("feed dropped"))
	assert.Equal(t, models.PresenceOffline, tracker.Status("b"))
}

func TestPresenceTrackerReconcileDiffsIDs(t *testing.T) {
	source := newPresenceSourceStub()
	tracker := NewPresenceTracker(source, nil, zap.NewNop())

	tracker.Reconcile([]string{"a", "b", "b"})
	assert.Equal(t, 2, tracker.Tracked())
	assert.Equal(t, 1, source.opened("b"))

	staleA := source.latest("a")
	tracker.Reconcile([]string{"b", "c"})
	assert.Equal(t, 2, tracker.Tracked())
	assert.Equal(t, 1, source.opened("b"), "kept ids are not re-subscribed")
	assert.Equal(t, 1, source.opened("c"))
	assert.Error(t, staleA.ctx.Err(), "removed ids are unsubscribed")

	staleA.fn([]byte(`{"state":"online"}`), nil)
	assert.Equal(t, models.PresenceUnknown, tracker.Status("a"), "closed watches never mutate state")
	_, tracked := tracker.Statuses()["a"]
	assert.False(t, tracked)
}

func TestPresenceTrackerWatchFailureResolvesOffline(t *testing.T) {
	source := newPresenceSourceStub()
	source.failIDs["x"] = true
	tracker := NewPresenceTracker(source, nil, zap.NewNop())

	tracker.Reconcile([]string{"x"})
	assert.Equal(t, models.PresenceOffline, tracker.Status("x"))
	assert.Equal(t, 0, tracker.Tracked())

	source.mu.Lock()
	source.failIDs["x"] = false
	source.mu.Unlock()
	tracker.Reconcile([]string{"x"})
	assert.Equal(t, 1, tracker.Tracked(), "failed watches are retried on the next reconcile")
}

func TestPresenceTrackerReconcileDropsFailedWatchStatus(t *testing.T) {
	source := newPresenceSourceStub()
	source.failIDs["x"] = true
	tracker := NewPresenceTracker(source, nil, zap.NewNop())

	tracker.Reconcile([]string{"x"})
	require.Equal(t, models.PresenceOffline, tracker.Status("x"))

	tracker.Reconcile(nil)
	assert.Equal(t, models.PresenceUnknown, tracker.Status("x"))
	assert.Empty(t, tracker.Statuses())
}

func TestPresenceTrackerAggregateAndClose(t *testing.T) {
	source := newPresenceSourceStub()
	tracker := NewPresenceTracker(source, nil, zap.NewNop())

	require.NoError(t, tracker.StartAggregate(context.Background()))
	require.NoError(t, tracker.StartAggregate(context.Background()))
	source.aggregate(3, nil)
	assert.Equal(t, 3, tracker.OnlineCount())
	source.aggregate(0, errors.New("scan failed"))
	assert.Equal(t, 3, tracker.OnlineCount(), "errors keep the last count")

	tracker.Reconcile([]string{"a"})
	watch := source.latest("a")

	tracker.Close()
	tracker.Close()
	assert.Error(t, watch.ctx.Err())
	assert.Error(t, source.aggCtx.Err())
	assert.Equal(t, 0, tracker.Tracked())
	assert.Equal(t, 0, tracker.OnlineCount())

	tracker.Reconcile([]string{"a"})
	assert.Equal(t, 2, source.opened("a"), "tracker is reusable after close")
}
