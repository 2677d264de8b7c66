// Package workers holds the periodic maintenance jobs run by cmd/worker.
package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"tasker/internal/platform/database"
	"tasker/internal/platform/repositories"
)

type TokenPurger struct {
	db    database.DBTX
	repos repositories.Manager
	now   func() time.Time
}

func NewTokenPurger(db database.DBTX, repos repositories.Manager) *TokenPurger {
	return &TokenPurger{db: db, repos: repos, now: time.Now}
}

// PurgeExpiredRefreshTokens removes refresh tokens that can no longer be
// rotated. Tokens are also deleted lazily when presented after expiry.
func (p *TokenPurger) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	n, err := p.repos.RefreshTokens(p.db).DeleteExpired(ctx, p.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zerolog.Ctx(ctx).Info().Int64("deleted", n).Msg("purged expired refresh tokens")
	}
	return n, nil
}

// Every runs job immediately and then on each tick until ctx is done.
// Errors are logged and the loop continues.
func Every(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context) error) {
	logger := zerolog.Ctx(ctx).With().Str("job", name).Logger()

	run := func() {
		if err := job(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("job failed")
		}
	}

	if interval <= 0 {
		interval = time.Hour
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
