package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", NotFound("API key not found"))

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("boom")))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"unauthenticated", Unauthenticated("Invalid email or password"), http.StatusUnauthorized, "Invalid email or password"},
		{"quota", QuotaExceeded("Maximum of 10 API keys per user"), http.StatusBadRequest, "Maximum of 10 API keys per user"},
		{"upstream", Upstream("Event Horizon token exchange failed", stderrors.New("503")), http.StatusBadGateway, "Event Horizon token exchange failed"},
		{"configuration hides detail", Configuration(stderrors.New("jwt secret missing")), http.StatusInternalServerError, "Server configuration error"},
		{"plain error is internal", stderrors.New("sql: connection refused"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.NotContains(t, rr.Body.String(), "jwt secret")
		})
	}
}

func TestWriteError_ValidationFields(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, Validation("Validation failed", map[string][]string{"email": {"Invalid email address"}}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"message":"Validation failed","errors":{"email":["Invalid email address"]}}`, rr.Body.String())
}

func TestOrInternal(t *testing.T) {
	assert.Nil(t, OrInternal(nil))

	conflict := Conflict("An account with this email already exists")
	assert.Same(t, conflict, OrInternal(conflict))

	wrapped := OrInternal(stderrors.New("disk full"))
	assert.Equal(t, KindInternal, KindOf(wrapped))
	assert.EqualError(t, wrapped, "Internal server error: disk full")
}
