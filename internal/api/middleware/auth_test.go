package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiContext "tasker/internal/api/context"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/platform/auth"
)

type fakeTokens struct {
	calls  int
	userID string
	err    error
}

func (f *fakeTokens) VerifyAccessToken(string) (string, error) {
	f.calls++
	return f.userID, f.err
}

type fakeKeys struct {
	calls int
	valid map[string]string
}

func (f *fakeKeys) IsKey(candidate string) bool { return strings.HasPrefix(candidate, "tsk_k_") }

func (f *fakeKeys) Validate(_ context.Context, raw string) (string, bool) {
	f.calls++
	userID, ok := f.valid[raw]
	return userID, ok
}

func serve(h http.HandlerFunc, authorization string) (*httptest.ResponseRecorder, string) {
	req := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h(rr, req)

	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	return rr, body.Message
}

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	id, _ := apiContext.IdentityFrom(r.Context())
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(id.UserID + ":" + string(id.Method)))
}

func TestAuthMiddleware_Dispatch(t *testing.T) {
	t.Run("jwt", func(t *testing.T) {
		tokens := &fakeTokens{userID: "u1"}
		keys := &fakeKeys{}
		rr, _ := serve(NewAuthMiddleware(tokens, keys).Handle(echoIdentity), "Bearer eyJhbGciOi.x.y")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u1:jwt", rr.Body.String())
		assert.Equal(t, 1, tokens.calls)
		assert.Zero(t, keys.calls)
	})

	t.Run("api key never falls back to jwt", func(t *testing.T) {
		tokens := &fakeTokens{userID: "u1"}
		keys := &fakeKeys{valid: map[string]string{}}
		rr, msg := serve(NewAuthMiddleware(tokens, keys).Handle(echoIdentity), "Bearer tsk_k_unknown")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid API key", msg)
		assert.Zero(t, tokens.calls)
	})

	t.Run("valid api key", func(t *testing.T) {
		keys := &fakeKeys{valid: map[string]string{"tsk_k_good": "u2"}}
		rr, _ := serve(NewAuthMiddleware(&fakeTokens{}, keys).Handle(echoIdentity), "bearer tsk_k_good")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u2:api_key", rr.Body.String())
	})
}

func TestAuthMiddleware_Failures(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"no header", "", nil, http.StatusUnauthorized, "Authentication required"},
		{"wrong scheme", "Basic dTpw", nil, http.StatusUnauthorized, "Authentication required"},
		{"empty bearer", "Bearer  ", nil, http.StatusUnauthorized, "Authentication required"},
		{"expired", "Bearer a.b.c", auth.ErrTokenExpired, http.StatusUnauthorized, "Token expired"},
		{"invalid", "Bearer a.b.c", auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"unexpected", "Bearer a.b.c", errors.New("boom"), http.StatusUnauthorized, "Authentication failed"},
		{"no secret", "Bearer a.b.c", apperrors.Configuration(auth.ErrMissingSecret), http.StatusInternalServerError, "Server configuration error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(&fakeTokens{err: tt.err}, &fakeKeys{})
			rr, msg := serve(m.Handle(echoIdentity), tt.header)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestRequireJWT(t *testing.T) {
	keys := &fakeKeys{valid: map[string]string{"tsk_k_good": "u2"}}
	m := NewAuthMiddleware(&fakeTokens{userID: "u1"}, keys)
	h := m.Handle(RequireJWT(echoIdentity))

	rr, msg := serve(h, "Bearer tsk_k_good")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, msg, "API keys are not accepted")

	rr, _ = serve(h, "Bearer a.b.c")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1:jwt", rr.Body.String())
}
