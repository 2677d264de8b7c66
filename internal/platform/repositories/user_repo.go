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

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, auth_provider, created_at, updated_at`

// Create inserts user. A taken email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, auth_provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.PasswordHash, string(user.AuthProvider), toMillis(user.CreatedAt), toMillis(user.UpdatedAt))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UpdateAuthProvider records the provider of the most recent sign-in.
func (r *UserRepository) UpdateAuthProvider(ctx context.Context, id string, provider models.AuthProvider, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET auth_provider = $1, updated_at = $2 WHERE id = $3`, string(provider), toMillis(updatedAt), id)
	if err != nil {
		return fmt.Errorf("update auth provider: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		u                    models.User
		hash                 sql.NullString
		provider             string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &hash, &provider, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	u.AuthProvider = models.AuthProvider(provider)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}
