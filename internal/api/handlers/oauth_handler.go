package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"tasker/internal/engine/eventhorizon"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/validator"
)

var errProviderDenied = apperrors.New(apperrors.KindValidation, "Event Horizon authorization was not granted")

type OAuthHandler struct {
	coordinator *eventhorizon.Coordinator
	validate    *validator.Validator
}

func NewOAuthHandler(c *eventhorizon.Coordinator, v *validator.Validator) *OAuthHandler {
	return &OAuthHandler{coordinator: c, validate: v}
}

type oauthLoginQuery struct {
	RedirectURI string `validate:"required,url" json:"redirect_uri"`
}

// Login sends the browser to the Event Horizon authorize page.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	q := oauthLoginQuery{RedirectURI: r.URL.Query().Get("redirect_uri")}
	if err := h.validate.Struct(&q); err != nil {
		writeError(w, r, err)
		return
	}

	authURL, err := h.coordinator.Start(r.Context(), q.RedirectURI)
	if err != nil {
		if errors.Is(err, eventhorizon.ErrRedirectNotAllowed) {
			writeErrorStatus(w, r, http.StatusBadRequest, err)
			return
		}
		writeError(w, r, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the provider round trip and hands the tokens to the
// client redirect URI.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		zerolog.Ctx(r.Context()).Info().Str("error", providerErr).Msg("event horizon authorization denied")
		writeError(w, r, errProviderDenied)
		return
	}

	res, err := h.coordinator.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	target, err := res.RedirectURL()
	if err != nil {
		writeError(w, r, apperrors.Internal(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
