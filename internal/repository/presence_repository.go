package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// PresenceFunc receives the raw presence document of a key; nil means no data.
type PresenceFunc func(raw []byte, err error)

// OnlineCountFunc receives the number of keys currently marked online.
type OnlineCountFunc func(count int, err error)

// PresenceRepository stores presence documents in Redis and fans out changes over pub/sub.
// A key and its change channel share the same name.
type PresenceRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewPresenceRepository constructs a presence repository.
func NewPresenceRepository(client *redis.Client, prefix string, logger *zap.Logger) *PresenceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "status:"
	}
	return &PresenceRepository{client: client, prefix: prefix, logger: logger}
}

func (r *PresenceRepository) key(id string) string {
	return r.prefix + id
}

// Get returns the stored document for id, or nil when absent.
func (r *PresenceRepository) Get(ctx context.Context, id string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key(id), err)
	}
	return raw, nil
}

// SetState writes the presence document for id and publishes it.
func (r *PresenceRepository) SetState(ctx context.Context, id, state string) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(models.PresenceDocument{State: state, LastChanged: &now})
	if err != nil {
		return fmt.Errorf("marshal presence %s: %w", id, err)
	}

	key := r.key(id)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.Publish(ctx, key, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set presence %s: %w", key, err)
	}
	return nil
}

// Clear removes the presence document for id and publishes an empty payload.
func (r *PresenceRepository) Clear(ctx context.Context, id string) error {
	key := r.key(id)
	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Publish(ctx, key, "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear presence %s: %w", key, err)
	}
	return nil
}

// Watch emits the current document of id and then every published change until
// the subscription is closed. The first emission happens before Watch returns.
func (r *PresenceRepository) Watch(ctx context.Context, id string, fn PresenceFunc) (*Subscription, error) {
	key := r.key(id)
	pubsub := r.client.Subscribe(ctx, key)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	sub, subCtx := NewSubscription(ctx)
	messages := pubsub.Channel()

	initial, err := r.Get(subCtx, id)
	fn(initial, err)

	go func() {
		defer sub.finish()
		defer pubsub.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if msg.Payload == "" {
					fn(nil, nil)
					continue
				}
				fn([]byte(msg.Payload), nil)
			}
		}
	}()
	return sub, nil
}

// CountOnline scans every presence key and counts the online ones.
func (r *PresenceRepository) CountOnline(ctx context.Context) (int, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %s*: %w", r.prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis mget presence: %w", err)
	}

	count := 0
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		if models.ResolvePresence([]byte(raw)) == models.PresenceOnline {
			count++
		}
	}
	return count, nil
}

// WatchAll emits the online count now and after every change to any presence key.
func (r *PresenceRepository) WatchAll(ctx context.Context, fn OnlineCountFunc) (*Subscription, error) {
	pattern := r.prefix + "*"
	pubsub := r.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	sub, subCtx := NewSubscription(ctx)
	messages := pubsub.Channel()

	fn(r.CountOnline(subCtx))

	go func() {
		defer sub.finish()
		defer pubsub.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Channel, r.prefix) {
					continue
				}
				fn(r.CountOnline(subCtx))
			}
		}
	}()
	return sub, nil
}
