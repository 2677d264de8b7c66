package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"tasker/internal/pkg/detach"
	"tasker/internal/platform/database"
	"tasker/internal/platform/models"
	"tasker/internal/platform/repositories"
)

const (
	ActionUserRegistered = "user.registered"
	ActionUserLogin      = "user.login"
	ActionUserLogout     = "user.logout"
	ActionTokenRefreshed = "token.refreshed"
	ActionOAuthLogin     = "user.oauth_login"
	ActionOAuthLinked    = "user.oauth_linked"
	ActionAPIKeyCreated  = "api_key.created"
	ActionAPIKeyRevoked  = "api_key.revoked"
)

type Event struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
}

type requestInfo struct {
	ip        string
	userAgent string
}

type requestKey struct{}

// WithRequest stores the caller's address and user agent for later events.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return context.WithValue(ctx, requestKey{}, requestInfo{ip: ip, userAgent: r.UserAgent()})
}

type Logger struct {
	db         database.DBTX
	repos      repositories.Manager
	supervisor *detach.Supervisor
	now        func() time.Time
}

func NewLogger(db database.DBTX, repos repositories.Manager, supervisor *detach.Supervisor) *Logger {
	return &Logger{db: db, repos: repos, supervisor: supervisor, now: time.Now}
}

// Log records e in the background. Failures are logged by the supervisor
// and never reach the caller.
func (l *Logger) Log(ctx context.Context, e Event) {
	if l == nil {
		return
	}

	entry := &models.AuditLog{
		ID:           "audit_" + uuid.NewString(),
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     e.Metadata,
		CreatedAt:    l.now().UnixMilli(),
	}
	if info, ok := ctx.Value(requestKey{}).(requestInfo); ok {
		entry.IPAddress = info.ip
		entry.UserAgent = info.userAgent
	}

	l.supervisor.Go(ctx, "audit."+e.Action, func(ctx context.Context) error {
		return l.repos.Audit(l.db).Insert(ctx, entry)
	})
}
