package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/platform/audit"
	"tasker/internal/platform/auth"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
	"tasker/internal/platform/repositories"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingMetrics struct {
	mu      sync.Mutex
	logins  []string
	refresh []string
}

func (m *recordingMetrics) Login(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, result)
}

func (m *recordingMetrics) Refresh(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = append(m.refresh, result)
}

type harness struct {
	svc     *Service
	db      *database.DB
	tokens  *auth.TokenService
	clock   *clock
	metrics *recordingMetrics
}

var start = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "up"))

	c := &clock{now: start}
	tokens := auth.NewTokenService(config.JWTConfig{Secret: secret, AccessTokenTTL: 15 * time.Minute}, auth.WithClock(c.Now))
	m := &recordingMetrics{}

	svc := NewService(Deps{
		DB:         db.DB,
		Repos:      repositories.NewManager(),
		Tokens:     tokens,
		Hasher:     auth.NewPasswordHasher(bcrypt.MinCost),
		RefreshTTL: 7 * 24 * time.Hour,
		Metrics:    m,
		Now:        c.Now,
	})
	return &harness{svc: svc, db: db, tokens: tokens, clock: c, metrics: m}
}

func (h *harness) register(t *testing.T) *AuthResult {
	t.Helper()
	res, err := h.svc.Register(context.Background(), RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "Passw0rd"})
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	h := newHarness(t, "secret")

	res := h.register(t)

	assert.Equal(t, "ann@x.com", res.User.Email)
	assert.Equal(t, models.AuthProviderLocal, res.User.AuthProvider)
	require.NotNil(t, res.User.PasswordHash)
	assert.NotEqual(t, "Passw0rd", *res.User.PasswordHash)

	userID, err := h.tokens.VerifyAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
	assert.Len(t, res.Tokens.RefreshToken, 2*refreshTokenBytes)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t, "secret")
	h.register(t)

	_, err := h.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "  ANN@x.com ", Password: "Passw0rd"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestRegister_MissingSecretIsConfigurationError(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.svc.Register(context.Background(), RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "Passw0rd"})
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))

	_, err = h.svc.repos.Users(h.db).GetByEmail(context.Background(), "ann@x.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound, "user creation must roll back with the token pair")
}

func TestLogin(t *testing.T) {
	h := newHarness(t, "secret")
	registered := h.register(t)
	ctx := context.Background()

	res, err := h.svc.Login(ctx, "Ann@X.com", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, res.User.ID)

	_, err = h.svc.Login(ctx, "ann@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "Invalid email or password", err.Error())

	_, err = h.svc.Login(ctx, "nobody@x.com", "Passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, []string{"success", "invalid_credentials", "invalid_credentials"}, h.metrics.logins)
}

func TestLogin_DelegatedOnlyAccount(t *testing.T) {
	h := newHarness(t, "secret")
	ctx := context.Background()

	user := &models.User{ID: "eh-user", Name: "Eve", Email: "eve@x.com", AuthProvider: models.AuthProviderEventHorizon, CreatedAt: start, UpdatedAt: start}
	require.NoError(t, h.svc.repos.Users(h.db).Create(ctx, user))

	_, err := h.svc.Login(ctx, "eve@x.com", "anything")
	assert.ErrorIs(t, err, ErrDelegatedLoginOnly)
	assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
}

func TestRefresh_Rotates(t *testing.T) {
	h := newHarness(t, "secret")
	res := h.register(t)
	ctx := context.Background()

	pair, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)

	userID, err := h.tokens.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	_, err = h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	ttl := 7 * 24 * time.Hour

	t.Run("just before expiry", func(t *testing.T) {
		h := newHarness(t, "secret")
		res := h.register(t)

		h.clock.Set(start.Add(ttl - time.Millisecond))
		_, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("exactly at expiry", func(t *testing.T) {
		h := newHarness(t, "secret")
		res := h.register(t)

		h.clock.Set(start.Add(ttl))
		_, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrRefreshTokenExpired)

		_, err = h.svc.Refresh(ctx, res.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken, "expired token must be deleted on detection")
	})

	t.Run("just after expiry", func(t *testing.T) {
		h := newHarness(t, "secret")
		res := h.register(t)

		h.clock.Set(start.Add(ttl + time.Millisecond))
		_, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrRefreshTokenExpired)
		assert.Equal(t, []string{"expired"}, h.metrics.refresh)
	})
}

func TestRefresh_ConcurrentRotationSucceedsOnce(t *testing.T) {
	h := newHarness(t, "secret")
	res := h.register(t)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidRefreshToken):
				notFound++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, notFound)
}

func TestRefresh_SurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t, "secret")
	res := h.register(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pair, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = h.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t, "secret")
	res := h.register(t)
	ctx := context.Background()

	require.NoError(t, h.svc.Logout(ctx, res.Tokens.RefreshToken))
	require.NoError(t, h.svc.Logout(ctx, res.Tokens.RefreshToken))
	require.NoError(t, h.svc.Logout(ctx, "never-issued"))

	_, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func TestLogout_AuditsTokenOwner(t *testing.T) {
	h := newHarness(t, "secret")
	res := h.register(t)
	rec := &recordingAuditor{}
	h.svc.audit = rec

	require.NoError(t, h.svc.Logout(context.Background(), res.Tokens.RefreshToken))
	require.NoError(t, h.svc.Logout(context.Background(), res.Tokens.RefreshToken))

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionUserLogout, rec.events[0].Action)
	assert.Equal(t, res.User.ID, rec.events[0].UserID)
}

func TestProfile(t *testing.T) {
	h := newHarness(t, "secret")
	res := h.register(t)

	user, err := h.svc.Profile(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)

	_, err = h.svc.Profile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
