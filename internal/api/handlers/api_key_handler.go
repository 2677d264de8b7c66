package handlers

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	apiContext "tasker/internal/api/context"
	"tasker/internal/engine/apikeys"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/validator"
)

type APIKeyHandler struct {
	keys     *apikeys.Service
	validate *validator.Validator
}

func NewAPIKeyHandler(keys *apikeys.Service, v *validator.Validator) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, validate: v}
}

type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=50"`
}

func (req *CreateAPIKeyRequest) Normalize() {
	req.Name = strings.TrimSpace(req.Name)
}

// Create returns the raw key. It is never shown again.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := apiContext.IdentityFrom(r.Context())

	var req CreateAPIKeyRequest
	if err := h.validate.Decode(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.keys.Create(r.Context(), caller.UserID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteData(w, http.StatusCreated, created)
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := apiContext.IdentityFrom(r.Context())

	keys, err := h.keys.List(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteData(w, http.StatusOK, keys)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller, _ := apiContext.IdentityFrom(r.Context())
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)

	if err := h.keys.Revoke(r.Context(), caller.UserID, ps.ByName("id")); err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteMessage(w, http.StatusOK, "API key revoked")
}
