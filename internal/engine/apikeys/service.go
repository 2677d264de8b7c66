package apikeys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"tasker/internal/pkg/detach"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/random"
	"tasker/internal/platform/audit"
	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
	"tasker/internal/platform/repositories"
)

const (
	secretBytes = 32
	// characters of the random payload kept in the display prefix
	displayChars = 6
)

var ErrKeyNotFound = apperrors.NotFound("API key not found")

// CreatedKey is the only view that ever carries the raw key.
type CreatedKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	CreatedAt time.Time `json:"createdAt"`
	Key       string    `json:"key"`
}

type Metrics interface {
	KeyValidation(result string)
}

type Auditor interface {
	Log(ctx context.Context, e audit.Event)
}

type Deps struct {
	DB         database.DBTX
	Repos      repositories.Manager
	Supervisor *detach.Supervisor
	Prefix     string
	MaxPerUser int
	Audit      Auditor
	Metrics    Metrics
	Now        func() time.Time
}

type Service struct {
	db         database.DBTX
	repos      repositories.Manager
	supervisor *detach.Supervisor
	prefix     string
	maxPerUser int
	audit      Auditor
	metrics    Metrics
	now        func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		db:         d.DB,
		repos:      d.Repos,
		supervisor: d.Supervisor,
		prefix:     d.Prefix,
		maxPerUser: d.MaxPerUser,
		audit:      d.Audit,
		metrics:    d.Metrics,
		now:        d.Now,
	}
	if s.prefix == "" {
		s.prefix = "tsk_k_"
	}
	if s.maxPerUser <= 0 {
		s.maxPerUser = 10
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = nopAuditor{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Create mints a key for userID. The count check is advisory: concurrent
// creates by one user may briefly exceed the limit.
func (s *Service) Create(ctx context.Context, userID, name string) (*CreatedKey, error) {
	ctx = context.WithoutCancel(ctx)
	repo := s.repos.APIKeys(s.db)

	count, err := repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if count >= s.maxPerUser {
		return nil, apperrors.QuotaExceeded(fmt.Sprintf("Maximum of %d API keys per user", s.maxPerUser))
	}

	payload, err := random.Hex(secretBytes)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	raw := s.prefix + payload

	key := &models.APIKey{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		KeyHash:   Hash(raw),
		KeyPrefix: raw[:len(s.prefix)+displayChars],
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	if err := repo.Create(ctx, key); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.audit.Log(ctx, audit.Event{UserID: userID, Action: audit.ActionAPIKeyCreated, ResourceType: "api_key", ResourceID: key.ID, Metadata: map[string]any{"name": key.Name}})
	return &CreatedKey{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		CreatedAt: key.CreatedAt,
		Key:       raw,
	}, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*models.APIKey, error) {
	keys, err := s.repos.APIKeys(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return keys, nil
}

// Revoke deletes keyID when userID owns it. Missing and foreign keys both
// report ErrKeyNotFound.
func (s *Service) Revoke(ctx context.Context, userID, keyID string) error {
	err := s.repos.APIKeys(s.db).DeleteForUser(context.WithoutCancel(ctx), keyID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	s.audit.Log(ctx, audit.Event{UserID: userID, Action: audit.ActionAPIKeyRevoked, ResourceType: "api_key", ResourceID: keyID})
	return nil
}

// IsKey reports whether candidate has the API key shape.
func (s *Service) IsKey(candidate string) bool {
	return strings.HasPrefix(candidate, s.prefix)
}

// Validate resolves raw to its owner. It reports false for anything that is
// not a stored key, including lookup failures, and never returns an error.
// A hit schedules a lastUsedAt update that the caller does not wait for.
func (s *Service) Validate(ctx context.Context, raw string) (string, bool) {
	if !s.IsKey(raw) {
		s.metrics.KeyValidation("malformed")
		return "", false
	}

	key, err := s.repos.APIKeys(s.db).GetByHash(ctx, Hash(raw))
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("api key lookup failed")
			s.metrics.KeyValidation("error")
		} else {
			s.metrics.KeyValidation("miss")
		}
		return "", false
	}

	s.metrics.KeyValidation("hit")
	usedAt := s.now().UTC()
	if s.supervisor != nil {
		s.supervisor.Go(ctx, "api_key.touch", func(ctx context.Context) error {
			return s.repos.APIKeys(s.db).UpdateLastUsed(ctx, key.ID, usedAt)
		})
	}
	return key.UserID, true
}

// Hash is the stored form of a raw key.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, audit.Event) {}

type nopMetrics struct{}

func (nopMetrics) KeyValidation(string) {}
