// Package sessions issues and rotates the access/refresh token pair for
// password accounts and for any caller that has already proven identity.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/random"
	"tasker/internal/platform/audit"
	"tasker/internal/platform/auth"
	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
	"tasker/internal/platform/repositories"
)

// refreshTokenBytes of entropy back every opaque refresh token.
const refreshTokenBytes = 64

var (
	ErrInvalidCredentials  = apperrors.Unauthenticated("Invalid email or password")
	ErrDelegatedLoginOnly  = apperrors.Unauthenticated("This account uses Event Horizon sign-in. Please continue with Event Horizon.")
	ErrInvalidRefreshToken = apperrors.Unauthenticated("Invalid refresh token")
	ErrRefreshTokenExpired = apperrors.Unauthenticated("Refresh token expired")
	ErrEmailTaken          = apperrors.Conflict("An account with this email already exists")
	ErrUserNotFound        = apperrors.NotFound("User not found")
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type AuthResult struct {
	User   *models.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type Metrics interface {
	Login(result string)
	Refresh(result string)
}

type Auditor interface {
	Log(ctx context.Context, e audit.Event)
}

type Deps struct {
	DB         *sql.DB
	Repos      repositories.Manager
	Tokens     *auth.TokenService
	Hasher     *auth.PasswordHasher
	RefreshTTL time.Duration
	Audit      Auditor
	Metrics    Metrics
	Now        func() time.Time
}

type Service struct {
	db         *sql.DB
	repos      repositories.Manager
	tokens     *auth.TokenService
	hasher     *auth.PasswordHasher
	refreshTTL time.Duration
	audit      Auditor
	metrics    Metrics
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(d Deps) *Service {
	s := &Service{
		db:         d.DB,
		repos:      d.Repos,
		tokens:     d.Tokens,
		hasher:     d.Hasher,
		refreshTTL: d.RefreshTTL,
		audit:      d.Audit,
		metrics:    d.Metrics,
		now:        d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 7 * 24 * time.Hour
	}
	if s.audit == nil {
		s.audit = nopAuditor{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Register creates a local account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	// a client disconnect must not leave the account half created
	ctx = context.WithoutCancel(ctx)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.repos.Users(s.db).GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: &hash,
		AuthProvider: models.AuthProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pair *TokenPair
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		if err := s.repos.Users(tx).Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrEmailTaken
			}
			return apperrors.Internal(err)
		}
		var err error
		pair, err = s.IssueTokens(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{UserID: user.ID, Action: audit.ActionUserRegistered, ResourceType: "user", ResourceID: user.ID})
	zerolog.Ctx(ctx).Info().Str("user_id", user.ID).Msg("user registered")
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Login checks a password and issues a fresh token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		s.burnHash(password)
		s.metrics.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.Login("error")
		return nil, apperrors.Internal(err)
	}

	if !user.HasPassword() {
		s.metrics.Login("delegated_only")
		return nil, ErrDelegatedLoginOnly
	}
	if !s.hasher.Verify(password, *user.PasswordHash) {
		s.metrics.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.IssueTokens(ctx, s.db, user.ID)
	if err != nil {
		s.metrics.Login("error")
		return nil, err
	}

	s.metrics.Login("success")
	s.audit.Log(ctx, audit.Event{UserID: user.ID, Action: audit.ActionUserLogin, ResourceType: "user", ResourceID: user.ID, Metadata: map[string]any{"provider": string(models.AuthProviderLocal)}})
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Refresh consumes token and returns a replacement pair. The old token is
// deleted whether it was live or expired, so it can never be used twice.
func (s *Service) Refresh(ctx context.Context, token string) (*TokenPair, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		pair    *TokenPair
		userID  string
		expired bool
	)
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		rt, err := s.repos.RefreshTokens(tx).Consume(ctx, token)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return apperrors.Internal(err)
		}

		if rt.Expired(s.now()) {
			// commit the delete, report the expiry afterwards
			expired = true
			return nil
		}

		userID = rt.UserID
		pair, err = s.IssueTokens(ctx, tx, rt.UserID)
		return err
	})

	switch {
	case err != nil:
		if errors.Is(err, ErrInvalidRefreshToken) {
			s.metrics.Refresh("invalid")
		} else {
			s.metrics.Refresh("error")
		}
		return nil, err
	case expired:
		s.metrics.Refresh("expired")
		return nil, ErrRefreshTokenExpired
	}

	s.metrics.Refresh("success")
	s.audit.Log(ctx, audit.Event{UserID: userID, Action: audit.ActionTokenRefreshed, ResourceType: "refresh_token"})
	return pair, nil
}

// Logout deletes the refresh token. Unknown tokens succeed silently.
func (s *Service) Logout(ctx context.Context, token string) error {
	userID, err := s.repos.RefreshTokens(s.db).DeleteByToken(context.WithoutCancel(ctx), token)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	s.audit.Log(ctx, audit.Event{UserID: userID, Action: audit.ActionUserLogout, ResourceType: "refresh_token"})
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// IssueTokens signs an access token and stores a new refresh token through
// db, which may be a transaction owned by the caller.
func (s *Service) IssueTokens(ctx context.Context, db database.DBTX, userID string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return nil, apperrors.OrInternal(err)
	}

	raw, err := random.Hex(refreshTokenBytes)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := s.now().UTC()
	rt := &models.RefreshToken{
		ID:        uuid.NewString(),
		Token:     raw,
		UserID:    userID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.repos.RefreshTokens(db).Create(ctx, rt); err != nil {
		return nil, apperrors.Internal(err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: raw}, nil
}

// burnHash spends roughly one verification worth of time so a missing
// account answers no faster than a wrong password.
func (s *Service) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	s.hasher.Verify(password, s.dummyHash)
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, audit.Event) {}

type nopMetrics struct{}

func (nopMetrics) Login(string)   {}
func (nopMetrics) Refresh(string) {}
