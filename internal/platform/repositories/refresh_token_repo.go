package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
)

type RefreshTokenRepository struct {
	db database.DBTX
}

func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, token.Token, token.UserID, toMillis(token.ExpiresAt), toMillis(token.CreatedAt))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Consume deletes the token and returns the row it removed. Of two
// concurrent callers presenting the same token only one gets the row; the
// other sees ErrNotFound.
func (r *RefreshTokenRepository) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	var (
		rt                   models.RefreshToken
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE token = $1
		RETURNING id, user_id, expires_at, created_at
	`, token).Scan(&rt.ID, &rt.UserID, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	rt.Token = token
	rt.ExpiresAt = fromMillis(expiresAt)
	rt.CreatedAt = fromMillis(createdAt)
	return &rt, nil
}

// DeleteByToken removes the token and returns the id of the user it
// belonged to, or ErrNotFound for unknown tokens.
func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE token = $1
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("delete refresh token: %w", err)
	}
	return userID, nil
}

// DeleteExpired purges tokens whose expiry is at or before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
