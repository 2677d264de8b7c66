package handlers

import (
	"net/http"
	"time"

	apiContext "tasker/internal/api/context"
	"tasker/internal/engine/sessions"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/pkg/parser"
	"tasker/internal/platform/repositories"
)

const activityLimit = 50

type UserHandler struct {
	sessions *sessions.Service
	audit    *repositories.AuditRepository
}

func NewUserHandler(sessionSvc *sessions.Service, audit *repositories.AuditRepository) *UserHandler {
	return &UserHandler{sessions: sessionSvc, audit: audit}
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	caller, _ := apiContext.IdentityFrom(r.Context())

	user, err := h.sessions.Profile(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	apperrors.WriteData(w, http.StatusOK, user)
}

type activityEntry struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Device       string         `json:"device,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Activity lists the caller's most recent security events.
func (h *UserHandler) Activity(w http.ResponseWriter, r *http.Request) {
	caller, _ := apiContext.IdentityFrom(r.Context())

	logs, err := h.audit.ListByUser(r.Context(), caller.UserID, activityLimit)
	if err != nil {
		writeError(w, r, apperrors.Internal(err))
		return
	}

	entries := make([]activityEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, activityEntry{
			ID:           l.ID,
			Action:       l.Action,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			Metadata:     l.Metadata,
			IPAddress:    l.IPAddress,
			UserAgent:    l.UserAgent,
			Device:       parser.ParseUserAgent(l.UserAgent).String(),
			CreatedAt:    time.UnixMilli(l.CreatedAt).UTC(),
		})
	}

	apperrors.WriteData(w, http.StatusOK, entries)
}
