package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

const defaultHubBuffer = 32

// NotificationHub fans dashboard events out to every connected stream. Slow listeners
// lose events instead of blocking publishers.
type NotificationHub struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.DashboardEvent
	buffer      int
	logger      *zap.Logger
}

// NewNotificationHub constructs a hub.
func NewNotificationHub(buffer int, logger *zap.Logger) *NotificationHub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHub{subscribers: make(map[string]chan models.DashboardEvent), buffer: buffer, logger: logger}
}

// Subscribe registers a listener. The returned cancel func is idempotent and closes the channel.
func (h *NotificationHub) Subscribe() (<-chan models.DashboardEvent, func()) {
	id := uuid.NewString()
	ch := make(chan models.DashboardEvent, h.buffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers event to all listeners without blocking.
func (h *NotificationHub) Publish(event models.DashboardEvent) {
	if h == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Debug("drop event for slow listener", zap.String("listener", id), zap.String("type", string(event.Type)))
		}
	}
}

// Toast publishes a toast message.
func (h *NotificationHub) Toast(level models.ToastLevel, title, message string) {
	h.Publish(models.DashboardEvent{Type: models.EventToast, Level: level, Title: title, Message: message})
}

// Subscribers returns the number of connected listeners.
func (h *NotificationHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
