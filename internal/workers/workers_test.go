package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
	"tasker/internal/platform/repositories"
)

func TestPurgeExpiredRefreshTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)

	db, err := database.Open(config.DatabaseConfig{URL: ":memory:"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(ctx, db, "up"))

	repos := repositories.NewManager()
	require.NoError(t, repos.Users(db).Create(ctx, &models.User{
		ID: "u1", Name: "Ann", Email: "ann@x.com", AuthProvider: models.AuthProviderLocal, CreatedAt: now, UpdatedAt: now,
	}))
	for token, expires := range map[string]time.Time{
		"expired":  now.Add(-time.Minute),
		"boundary": now,
		"live":     now.Add(time.Minute),
	} {
		require.NoError(t, repos.RefreshTokens(db).Create(ctx, &models.RefreshToken{
			ID: "rt_" + token, Token: token, UserID: "u1", ExpiresAt: expires, CreatedAt: now.Add(-time.Hour),
		}))
	}

	purger := NewTokenPurger(db, repos)
	purger.now = func() time.Time { return now }

	n, err := purger.PurgeExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repos.RefreshTokens(db).Consume(ctx, "live")
	assert.NoError(t, err)
}

func TestPurgeExpiredRefreshTokens_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens").WillReturnError(errors.New("disk I/O error"))

	_, err = NewTokenPurger(db, repositories.NewManager()).PurgeExpiredRefreshTokens(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Every(ctx, "test", 5*time.Millisecond, func(context.Context) error {
			if runs.Add(1) >= 3 {
				cancel()
			}
			return errors.New("keeps going")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Every did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}
