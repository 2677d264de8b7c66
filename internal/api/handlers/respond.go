package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	apperrors "tasker/internal/pkg/errors"
)

// writeError logs failures the caller cannot act on, then renders err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(r, err)
	apperrors.WriteError(w, err)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	logFailure(r, err)
	apperrors.WriteErrorStatus(w, status, err)
}

func logFailure(r *http.Request, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindInternal, apperrors.KindConfiguration:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	case apperrors.KindUpstream:
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("identity provider failure")
	}
}
