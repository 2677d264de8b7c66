package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	apiContext "tasker/internal/api/context"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/platform/auth"
)

var (
	errAuthRequired  = apperrors.Unauthenticated("Authentication required")
	errTokenExpired  = apperrors.Unauthenticated("Token expired")
	errInvalidToken  = apperrors.Unauthenticated("Invalid token")
	errInvalidAPIKey = apperrors.Unauthenticated("Invalid API key")
	errAuthFailed    = apperrors.Unauthenticated("Authentication failed")
	errJWTRequired   = apperrors.Unauthenticated("This endpoint requires a bearer token; API keys are not accepted")
)

type AccessVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

type KeyValidator interface {
	IsKey(candidate string) bool
	Validate(ctx context.Context, raw string) (string, bool)
}

type AuthMiddleware struct {
	tokens AccessVerifier
	keys   KeyValidator
}

func NewAuthMiddleware(tokens AccessVerifier, keys KeyValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, keys: keys}
}

// Handle authenticates the bearer credential. Values with the API key
// prefix are only ever checked as keys; everything else only as a JWT.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			apperrors.WriteError(w, errAuthRequired)
			return
		}

		var identity *apiContext.Identity
		if m.keys.IsKey(token) {
			userID, ok := m.keys.Validate(r.Context(), token)
			if !ok {
				apperrors.WriteError(w, errInvalidAPIKey)
				return
			}
			identity = &apiContext.Identity{UserID: userID, Method: apiContext.MethodAPIKey}
		} else {
			userID, err := m.tokens.VerifyAccessToken(token)
			if err != nil {
				apperrors.WriteError(w, classify(r.Context(), err))
				return
			}
			identity = &apiContext.Identity{UserID: userID, Method: apiContext.MethodJWT}
		}

		ctx := apiContext.WithIdentity(r.Context(), identity)
		logger := zerolog.Ctx(ctx).With().Str("user_id", identity.UserID).Logger()
		next(w, r.WithContext(logger.WithContext(ctx)))
	}
}

// RequireJWT rejects requests authenticated with an API key. It must run
// after Handle.
func RequireJWT(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := apiContext.IdentityFrom(r.Context())
		if !ok || id.Method != apiContext.MethodJWT {
			apperrors.WriteError(w, errJWTRequired)
			return
		}
		next(w, r)
	}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return errTokenExpired
	case errors.Is(err, auth.ErrInvalidToken):
		return errInvalidToken
	case apperrors.Is(err, apperrors.KindConfiguration):
		zerolog.Ctx(ctx).Error().Err(err).Msg("cannot verify access token")
		return err
	default:
		return errAuthFailed
	}
}
