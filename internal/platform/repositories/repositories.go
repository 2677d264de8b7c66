package repositories

import (
	"errors"
	"time"

	"tasker/internal/platform/database"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Manager hands out repositories bound to either the pool or a transaction.
type Manager interface {
	Users(db database.DBTX) *UserRepository
	RefreshTokens(db database.DBTX) *RefreshTokenRepository
	APIKeys(db database.DBTX) *APIKeyRepository
	Audit(db database.DBTX) *AuditRepository
}

type manager struct{}

func NewManager() Manager { return manager{} }

func (manager) Users(db database.DBTX) *UserRepository { return NewUserRepository(db) }

func (manager) RefreshTokens(db database.DBTX) *RefreshTokenRepository {
	return NewRefreshTokenRepository(db)
}

func (manager) APIKeys(db database.DBTX) *APIKeyRepository { return NewAPIKeyRepository(db) }
func (manager) Audit(db database.DBTX) *AuditRepository    { return NewAuditRepository(db) }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
