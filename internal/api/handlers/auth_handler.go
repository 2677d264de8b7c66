package handlers

import (
	"net/http"
	"strings"

	"tasker/internal/engine/sessions"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/validator"
)

type AuthHandler struct {
	sessions *sessions.Service
	validate *validator.Validator
}

func NewAuthHandler(sessionSvc *sessions.Service, v *validator.Validator) *AuthHandler {
	return &AuthHandler{sessions: sessionSvc, validate: v}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128,password"`
}

func (req *RegisterRequest) Normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = validator.NormalizeEmail(req.Email)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (req *LoginRequest) Normalize() {
	req.Email = validator.NormalizeEmail(req.Email)
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.validate.Decode(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.sessions.Register(r.Context(), sessions.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteData(w, http.StatusCreated, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.validate.Decode(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteData(w, http.StatusOK, res)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := h.validate.Decode(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteData(w, http.StatusOK, pair)
}

// Logout always succeeds for well-formed requests, including unknown or
// missing tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := h.validate.Decode(r.Body, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.RefreshToken != "" {
		if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
			writeError(w, r, err)
			return
		}
	}

	apperrors.WriteMessage(w, http.StatusOK, "Logged out successfully")
}
