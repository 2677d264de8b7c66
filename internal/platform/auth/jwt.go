package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/platform/config"
)

const (
	issuer         = "tasker"
	audienceAccess = "access"
	audienceState  = "oauth_state"
)

var (
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// OAuthState is the payload carried through the provider round trip.
type OAuthState struct {
	RedirectURI  string `json:"redirect_uri"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier"`
}

type stateClaims struct {
	OAuthState
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
	now    func() time.Time
}

type Option func(*TokenService)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(cfg config.JWTConfig, opts ...Option) *TokenService {
	s := &TokenService{config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueAccessToken signs a short-lived bearer token for userID.
func (s *TokenService) IssueAccessToken(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceAccess},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return s.sign(claims)
}

// VerifyAccessToken returns the user id, ErrTokenExpired or ErrInvalidToken.
func (s *TokenService) VerifyAccessToken(tokenString string) (string, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, claims, audienceAccess); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// IssueState encodes state into a signed token valid for ttl.
func (s *TokenService) IssueState(state OAuthState, ttl time.Duration) (string, error) {
	now := s.now()
	claims := stateClaims{
		OAuthState: state,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audienceState},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return s.sign(claims)
}

func (s *TokenService) VerifyState(tokenString string) (*OAuthState, error) {
	claims := &stateClaims{}
	if err := s.parse(tokenString, claims, audienceState); err != nil {
		return nil, err
	}
	if claims.Nonce == "" || claims.CodeVerifier == "" || claims.RedirectURI == "" {
		return nil, ErrInvalidToken
	}
	return &claims.OAuthState, nil
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	if s.config.Secret == "" {
		return "", apperrors.Configuration(ErrMissingSecret)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims, audience string) error {
	if s.config.Secret == "" {
		return apperrors.Configuration(ErrMissingSecret)
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}
