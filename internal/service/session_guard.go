package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

type storeLifecycle interface {
	Activate() error
	Deactivate()
}

// SessionGuard keeps the record store live exactly while at least one operator session exists.
type SessionGuard struct {
	store         storeLifecycle
	metrics       *MetricsService
	logger        *zap.Logger
	sweepInterval time.Duration
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

// SessionGuardParams groups constructor dependencies.
type SessionGuardParams struct {
	Store         storeLifecycle
	Metrics       *MetricsService
	Logger        *zap.Logger
	SweepInterval time.Duration
}

// NewSessionGuard constructs a guard with no live sessions.
func NewSessionGuard(params SessionGuardParams) *SessionGuard {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := params.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionGuard{
		store:         params.Store,
		metrics:       params.Metrics,
		logger:        logger,
		sweepInterval: interval,
		now:           time.Now,
		sessions:      make(map[string]time.Time),
	}
}

// OnAuthStateChanged registers a session start or end. The first live session activates the
// store and the end of the last one deactivates it.
func (g *SessionGuard) OnAuthStateChanged(ctx context.Context, state models.AuthState) error {
	if state.SessionID == "" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !state.SignedIn {
		if _, ok := g.sessions[state.SessionID]; !ok {
			return nil
		}
		delete(g.sessions, state.SessionID)
		g.metrics.SetActiveSessions(len(g.sessions))
		if len(g.sessions) == 0 {
			g.logger.Info("last session ended, stopping live feed")
			g.store.Deactivate()
		}
		return nil
	}

	if !state.ExpiresAt.IsZero() && !state.ExpiresAt.After(g.now()) {
		return nil
	}

	_, known := g.sessions[state.SessionID]
	g.sessions[state.SessionID] = state.ExpiresAt

	// Activate is a no-op while the store is already live.
	if err := g.store.Activate(); err != nil {
		if !known {
			delete(g.sessions, state.SessionID)
		}
		g.metrics.SetActiveSessions(len(g.sessions))
		g.logger.Error("activate record store", zap.String("session", state.SessionID), zap.Error(err))
		return err
	}
	g.metrics.SetActiveSessions(len(g.sessions))
	return nil
}

// Touch registers an authenticated request's session, re-activating the store when needed.
func (g *SessionGuard) Touch(ctx context.Context, claims *models.JWTClaims) error {
	if claims == nil {
		return nil
	}
	state := models.AuthState{SignedIn: true, SessionID: claims.SessionID(), UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		state.ExpiresAt = claims.ExpiresAt.Time
	}
	return g.OnAuthStateChanged(ctx, state)
}

// Sweep ends every session whose token expired.
func (g *SessionGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	expired := 0
	for id, expiresAt := range g.sessions {
		if !expiresAt.IsZero() && !expiresAt.After(now) {
			delete(g.sessions, id)
			expired++
		}
	}
	if expired == 0 {
		return 0
	}
	g.metrics.SetActiveSessions(len(g.sessions))
	g.logger.Info("expired sessions swept", zap.Int("count", expired))
	if len(g.sessions) == 0 {
		g.store.Deactivate()
	}
	return expired
}

// Active returns the number of live sessions.
func (g *SessionGuard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Run sweeps expired sessions until ctx is cancelled, then ends every session.
func (g *SessionGuard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.sessions = make(map[string]time.Time)
			g.mu.Unlock()
			g.metrics.SetActiveSessions(0)
			g.store.Deactivate()
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}
