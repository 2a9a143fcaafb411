package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

func TestNotificationHubFanOut(t *testing.T) {
	hub := NewNotificationHub(4, nil)
	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()
	require.Equal(t, 2, hub.Subscribers())

	hub.Toast(models.ToastInfo, "Hello", "world")

	for _, ch := range []<-chan models.DashboardEvent{first, second} {
		select {
		case ev := <-ch:
			assert.Equal(t, models.EventToast, ev.Type)
			assert.Equal(t, "Hello", ev.Title)
			assert.False(t, ev.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancelFirst()
	cancelFirst()
	assert.Equal(t, 1, hub.Subscribers())
	_, open := <-first
	assert.False(t, open)
}

func TestNotificationHubDropsForSlowListeners(t *testing.T) {
	hub := NewNotificationHub(1, nil)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(models.DashboardEvent{Type: models.EventSound, Kind: models.SensitiveCard})
	hub.Publish(models.DashboardEvent{Type: models.EventSound, Kind: models.SensitivePersonal})

	ev := <-ch
	assert.Equal(t, models.SensitiveCard, ev.Kind)
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestNotificationHubNilIsSafe(t *testing.T) {
	var hub *NotificationHub
	assert.NotPanics(t, func() { hub.Toast(models.ToastError, "x", "y") })
}
