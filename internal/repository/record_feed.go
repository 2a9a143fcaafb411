package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// NotificationListener is the subset of *pq.Listener used by the record feed.
type NotificationListener interface {
	Listen(channel string) error
	Ping() error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

type snapshotLoader interface {
	ListSnapshot(ctx context.Context) ([]models.SnapshotEntry, int, error)
}

// SnapshotFunc receives a full replacement set of documents.
type SnapshotFunc func(entries []models.SnapshotEntry)

// FeedErrorFunc receives subscription failures.
type FeedErrorFunc func(err error)

// RecordFeed turns LISTEN/NOTIFY change signals into full snapshot emissions.
type RecordFeed struct {
	loader       snapshotLoader
	newListener  func() NotificationListener
	channel      string
	pingInterval time.Duration
	onDropped    func(n int)
	logger       *zap.Logger
}

// RecordFeedParams groups the feed dependencies.
type RecordFeedParams struct {
	Loader       snapshotLoader
	NewListener  func() NotificationListener
	Channel      string
	PingInterval time.Duration
	OnDropped    func(n int)
	Logger       *zap.Logger
}

// NewRecordFeed constructs a record feed.
func NewRecordFeed(params RecordFeedParams) *RecordFeed {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ping := params.PingInterval
	if ping <= 0 {
		ping = 90 * time.Second
	}
	return &RecordFeed{
		loader:       params.Loader,
		newListener:  params.NewListener,
		channel:      params.Channel,
		pingInterval: ping,
		onDropped:    params.OnDropped,
		logger:       logger,
	}
}

// Subscribe starts listening and emits the current snapshot followed by one snapshot
// per change burst. Callbacks run on the feed goroutine.
func (f *RecordFeed) Subscribe(ctx context.Context, onSnapshot SnapshotFunc, onError FeedErrorFunc) (*Subscription, error) {
	listener := f.newListener()
	if err := listener.Listen(f.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", f.channel, err)
	}

	sub, subCtx := NewSubscription(ctx)
	go f.run(subCtx, sub, listener, onSnapshot, onError)
	return sub, nil
}

func (f *RecordFeed) run(ctx context.Context, sub *Subscription, listener NotificationListener, onSnapshot SnapshotFunc, onError FeedErrorFunc) {
	defer sub.finish()
	defer func() {
		if err := listener.Close(); err != nil {
			f.logger.Debug("close listener", zap.Error(err))
		}
	}()

	load := func() {
		entries, dropped, err := f.loader.ListSnapshot(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			onError(err)
			return
		}
		if dropped > 0 && f.onDropped != nil {
			f.onDropped(dropped)
		}
		onSnapshot(entries)
	}

	load()

	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	notifications := listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notifications:
			if !ok {
				onError(fmt.Errorf("listener on %s closed", f.channel))
				return
			}
			drain(notifications)
			load()
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				f.logger.Warn("feed listener ping failed", zap.Error(err))
				onError(err)
			}
		}
	}
}

// drain coalesces notifications that are already queued into one reload.
func drain(ch <-chan *pq.Notification) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
