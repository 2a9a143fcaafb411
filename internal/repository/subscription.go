package repository

import (
	"context"
	"sync"
)

// Subscription is the handle of a live feed. Close is idempotent and never blocks;
// the feed goroutine releases its resources once it observes the cancellation.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSubscription derives a cancellable context for a feed goroutine and its handle.
func NewSubscription(parent context.Context) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{cancel: cancel, done: make(chan struct{})}, ctx
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Done is closed when the feed goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) finish() {
	close(s.done)
}
