package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

type mockAuthRepo struct {
	user             *models.User
	findErr          error
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.user == nil || m.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

type mockRevoker struct {
	revoked map[string]time.Duration
	err     error
}

func (m *mockRevoker) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.revoked[sessionID] = ttl
	return nil
}

func (m *mockRevoker) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.revoked[sessionID]
	return ok, nil
}

type recordingObserver struct {
	states []models.AuthState
	err    error
}

func (o *recordingObserver) OnAuthStateChanged(ctx context.Context, state models.AuthState) error {
	o.states = append(o.states, state)
	return o.err
}

func newAuthServiceForTest(t *testing.T, active bool) (*AuthService, *mockAuthRepo, *mockRevoker, *recordingObserver) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{user: &models.User{
		ID:           "op-1",
		Email:        "ops@example.com",
		PasswordHash: string(hash),
		FullName:     "Ops",
		Role:         models.RoleAdmin,
		Active:       active,
	}}
	revoker := &mockRevoker{revoked: make(map[string]time.Duration)}
	observer := &recordingObserver{}
	svc := NewAuthService(AuthServiceParams{
		Repo:     repo,
		Sessions: revoker,
		Observer: observer,
		Logger:   zap.NewNop(),
		Config:   AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "test"},
	})
	return svc, repo, revoker, observer
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo, _, observer := newAuthServiceForTest(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: " OPS@example.com ", Password: "s3cret!"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.True(t, repo.lastLoginUpdated)

	require.Len(t, observer.states, 1)
	assert.True(t, observer.states[0].SignedIn)
	assert.NotEmpty(t, observer.states[0].SessionID)

	claims, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.UserID)
	assert.Equal(t, observer.states[0].SessionID, claims.SessionID())
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _, _, observer := newAuthServiceForTest(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "wrong"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "s3cret!"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	assert.Empty(t, observer.states)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	svc, _, _, _ := newAuthServiceForTest(t, false)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "s3cret!"})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutRevokesSession(t *testing.T) {
	svc, _, revoker, observer := newAuthServiceForTest(t, true)
	ctx := context.Background()

	resp, err := svc.Login(ctx, models.LoginRequest{Email: "ops@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims))
	ttl, ok := revoker.revoked[claims.SessionID()]
	require.True(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
	require.Len(t, observer.states, 2)
	assert.False(t, observer.states[1].SignedIn)

	_, err = svc.ValidateToken(ctx, resp.AccessToken)
	assert.Equal(t, appErrors.ErrSessionRequired.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsExpired(t *testing.T) {
	svc, _, _, _ := newAuthServiceForTest(t, true)
	ctx := context.Background()
	resp, err := svc.Login(ctx, models.LoginRequest{Email: "ops@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(ctx, resp.AccessToken)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.ValidateToken(ctx, "garbage")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenStoreUnavailable(t *testing.T) {
	svc, _, revoker, _ := newAuthServiceForTest(t, true)
	ctx := context.Background()
	resp, err := svc.Login(ctx, models.LoginRequest{Email: "ops@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	revoker.err = errors.New("redis down")
	_, err = svc.ValidateToken(ctx, resp.AccessToken)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceMe(t *testing.T) {
	svc, _, _, _ := newAuthServiceForTest(t, true)
	info, err := svc.Me(context.Background(), &models.JWTClaims{UserID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", info.Email)

	_, err = svc.Me(context.Background(), &models.JWTClaims{UserID: "missing"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
