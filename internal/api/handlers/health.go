package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
	now    func() time.Time
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, now: time.Now}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	status, code, message := "healthy", http.StatusOK, "Tasker API is running"
	for _, name := range names {
		results[name] = "healthy"
		if err := h.checks[name](ctx); err != nil {
			results[name] = "unhealthy"
			status, code, message = "degraded", http.StatusServiceUnavailable, name+" unavailable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Success   bool              `json:"success"`
		Message   string            `json:"message"`
		Status    string            `json:"status"`
		Checks    map[string]string `json:"checks"`
		Timestamp time.Time         `json:"timestamp"`
	}{
		Success:   code == http.StatusOK,
		Message:   message,
		Status:    status,
		Checks:    results,
		Timestamp: h.now().UTC(),
	})
}
