// Package eventhorizon runs the delegated login flow against the Event
// Horizon identity provider: authorization code with PKCE, a signed state
// token in place of a server-side session, and account linking by email.
package eventhorizon

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"tasker/internal/engine/sessions"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/random"
	"tasker/internal/platform/audit"
	"tasker/internal/platform/auth"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
	"tasker/internal/platform/repositories"
)

const nonceBytes = 16

var (
	ErrRedirectNotAllowed = apperrors.Forbidden("Invalid or disallowed redirect_uri")
	ErrInvalidState       = apperrors.New(apperrors.KindValidation, "Invalid or expired OAuth state")
	ErrMissingParams      = apperrors.New(apperrors.KindValidation, "Missing code or state")
	ErrProfileNoEmail     = apperrors.New(apperrors.KindValidation, "Event Horizon account has no email address")
	ErrEmailNotVerified   = apperrors.Forbidden("Event Horizon email address is not verified")
	errNotConfigured      = errors.New("event horizon client is not configured")
)

// TokenIssuer mints a session for an already identified user.
type TokenIssuer interface {
	IssueTokens(ctx context.Context, db database.DBTX, userID string) (*sessions.TokenPair, error)
}

type Metrics interface {
	OAuthCallback(result string)
}

type Auditor interface {
	Log(ctx context.Context, e audit.Event)
}

type Deps struct {
	Config   config.EventHorizonConfig
	Provider *Provider
	Tokens   *auth.TokenService
	Sessions TokenIssuer
	DB       *sql.DB
	Repos    repositories.Manager
	Nonces   NonceStore
	Audit    Auditor
	Metrics  Metrics
	Now      func() time.Time
}

type Coordinator struct {
	cfg      config.EventHorizonConfig
	provider *Provider
	tokens   *auth.TokenService
	sessions TokenIssuer
	db       *sql.DB
	repos    repositories.Manager
	nonces   NonceStore
	audit    Auditor
	metrics  Metrics
	now      func() time.Time
}

func NewCoordinator(d Deps) *Coordinator {
	c := &Coordinator{
		cfg:      d.Config,
		provider: d.Provider,
		tokens:   d.Tokens,
		sessions: d.Sessions,
		db:       d.DB,
		repos:    d.Repos,
		nonces:   d.Nonces,
		audit:    d.Audit,
		metrics:  d.Metrics,
		now:      d.Now,
	}
	if c.provider == nil {
		c.provider = NewProvider(d.Config)
	}
	if c.cfg.StateTTL <= 0 {
		c.cfg.StateTTL = 5 * time.Minute
	}
	if c.nonces == nil {
		c.nonces = NewMemoryNonceStore()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.audit == nil {
		c.audit = nopAuditor{}
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	return c
}

// Start validates redirectURI and returns the provider authorize URL.
func (c *Coordinator) Start(ctx context.Context, redirectURI string) (string, error) {
	if err := c.checkConfig(); err != nil {
		return "", err
	}
	if !c.allowed(redirectURI) {
		zerolog.Ctx(ctx).Warn().Str("redirect_uri", redirectURI).Msg("rejected oauth redirect_uri")
		return "", ErrRedirectNotAllowed
	}

	nonce, err := random.Hex(nonceBytes)
	if err != nil {
		return "", apperrors.Internal(err)
	}
	verifier := oauth2.GenerateVerifier()

	state, err := c.tokens.IssueState(auth.OAuthState{
		RedirectURI:  redirectURI,
		Nonce:        nonce,
		CodeVerifier: verifier,
	}, c.cfg.StateTTL)
	if err != nil {
		return "", apperrors.OrInternal(err)
	}

	return c.provider.AuthURL(state, verifier), nil
}

type CallbackResult struct {
	UserID       string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
}

// RedirectURL is RedirectURI with the issued tokens appended as query
// parameters.
func (r *CallbackResult) RedirectURL() (string, error) {
	u, err := url.Parse(r.RedirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("access_token", r.AccessToken)
	q.Set("refresh_token", r.RefreshToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Callback completes the flow started by Start. Nothing is created or
// modified unless the state token verifies and its nonce is unused.
func (c *Coordinator) Callback(ctx context.Context, code, state string) (*CallbackResult, error) {
	res, err := c.callback(ctx, code, state)
	switch {
	case err == nil:
		c.metrics.OAuthCallback("success")
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrMissingParams):
		c.metrics.OAuthCallback("invalid_state")
	case apperrors.Is(err, apperrors.KindUpstream):
		c.metrics.OAuthCallback("upstream_error")
	default:
		c.metrics.OAuthCallback("error")
	}
	return res, err
}

func (c *Coordinator) callback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if code == "" || state == "" {
		return nil, ErrMissingParams
	}

	st, err := c.tokens.VerifyState(state)
	if err != nil {
		if apperrors.Is(err, apperrors.KindConfiguration) {
			return nil, err
		}
		return nil, ErrInvalidState
	}
	if !c.allowed(st.RedirectURI) {
		return nil, ErrRedirectNotAllowed
	}

	fresh, err := c.nonces.Claim(ctx, st.Nonce, c.cfg.StateTTL)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !fresh {
		zerolog.Ctx(ctx).Warn().Msg("oauth state replayed")
		return nil, ErrInvalidState
	}

	tok, err := c.provider.Exchange(ctx, code, st.CodeVerifier)
	if err != nil {
		return nil, apperrors.Upstream("Event Horizon token exchange failed", err)
	}

	profile, err := c.provider.FetchProfile(ctx, tok)
	if err != nil {
		return nil, apperrors.Upstream("Failed to fetch Event Horizon profile", err)
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return nil, ErrProfileNoEmail
	}

	user, pair, linked, err := c.signIn(context.WithoutCancel(ctx), email, profile)
	if err != nil {
		return nil, err
	}

	action := audit.ActionOAuthLogin
	if linked {
		action = audit.ActionOAuthLinked
	}
	c.audit.Log(ctx, audit.Event{UserID: user.ID, Action: action, ResourceType: "user", ResourceID: user.ID, Metadata: map[string]any{"provider": string(models.AuthProviderEventHorizon)}})

	return &CallbackResult{
		UserID:       user.ID,
		RedirectURI:  st.RedirectURI,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// signIn finds or creates the local user for email and issues a session in
// one transaction. An existing local account with the same email is linked.
func (c *Coordinator) signIn(ctx context.Context, email string, profile *Profile) (*models.User, *sessions.TokenPair, bool, error) {
	var (
		user   *models.User
		pair   *sessions.TokenPair
		linked bool
	)
	err := database.WithTx(ctx, c.db, func(ctx context.Context, tx database.DBTX) error {
		users := c.repos.Users(tx)
		now := c.now().UTC()

		existing, err := users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			user = existing
			if user.AuthProvider != models.AuthProviderEventHorizon {
				if !profile.EmailVerified {
					if c.cfg.LinkRequiresVerifiedEmail {
						return ErrEmailNotVerified
					}
					zerolog.Ctx(ctx).Warn().Str("user_id", user.ID).Msg("linking account to unverified event horizon email")
				}
				if err := users.UpdateAuthProvider(ctx, user.ID, models.AuthProviderEventHorizon, now); err != nil {
					return apperrors.Internal(err)
				}
				user.AuthProvider = models.AuthProviderEventHorizon
				user.UpdatedAt = now
				linked = true
			}
		case errors.Is(err, repositories.ErrNotFound):
			user = &models.User{
				ID:           uuid.NewString(),
				Name:         profile.DisplayName(),
				Email:        email,
				AuthProvider: models.AuthProviderEventHorizon,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := users.Create(ctx, user); err != nil {
				if errors.Is(err, repositories.ErrDuplicate) {
					return sessions.ErrEmailTaken
				}
				return apperrors.Internal(err)
			}
		default:
			return apperrors.Internal(err)
		}

		pair, err = c.sessions.IssueTokens(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	return user, pair, linked, nil
}

func (c *Coordinator) allowed(redirectURI string) bool {
	return redirectURI != "" && slices.Contains(c.cfg.AllowedRedirectURIs, redirectURI)
}

func (c *Coordinator) checkConfig() error {
	cfg := c.cfg
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.AuthorizeURL == "" ||
		cfg.TokenURL == "" || cfg.ProfileURL == "" || cfg.CallbackURL == "" {
		return apperrors.Configuration(errNotConfigured)
	}
	return nil
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, audit.Event) {}

type nopMetrics struct{}

func (nopMetrics) OAuthCallback(string) {}
