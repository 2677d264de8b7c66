package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	apiContext "tasker/internal/api/context"
	"tasker/internal/api/handlers"
	"tasker/internal/api/middleware"
	apperrors "tasker/internal/pkg/errors"
	"tasker/internal/platform/audit"
)

type Dependencies struct {
	BasePath      string
	AuthPerMinute int

	AuthHandler    *handlers.AuthHandler
	OAuthHandler   *handlers.OAuthHandler
	APIKeyHandler  *handlers.APIKeyHandler
	UserHandler    *handlers.UserHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
	Logger         *zerolog.Logger
}

var errRouteNotFound = apperrors.NotFound("Route not found")

// NewRouter mounts every route under deps.BasePath and wraps the result in
// request logging.
func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()
	base := strings.TrimSuffix(deps.BasePath, "/")

	authMid := deps.AuthMiddleware
	limit := deps.RateLimiter.Limit("auth", deps.AuthPerMinute)

	router.GET(base+"/health", wrap(deps.HealthHandler.Check))
	router.GET(base+"/metrics", wrap(deps.MetricsHandler.Export))

	// Credentials
	router.POST(base+"/auth/register", chain(deps.AuthHandler.Register, limit))
	router.POST(base+"/auth/login", chain(deps.AuthHandler.Login, limit))
	router.POST(base+"/auth/refresh", chain(deps.AuthHandler.Refresh, limit))
	router.POST(base+"/auth/logout", wrap(deps.AuthHandler.Logout))

	// Event Horizon
	router.GET(base+"/auth/eventhorizon/login", chain(deps.OAuthHandler.Login, limit))
	router.GET(base+"/auth/eventhorizon/callback", chain(deps.OAuthHandler.Callback, limit))

	// API keys
	router.POST(base+"/keys", chain(deps.APIKeyHandler.Create, authMid.Handle, middleware.RequireJWT))
	router.GET(base+"/keys", chain(deps.APIKeyHandler.List, authMid.Handle))
	router.DELETE(base+"/keys/:id", chain(deps.APIKeyHandler.Revoke, authMid.Handle))

	// Current user
	router.GET(base+"/user/profile", chain(deps.UserHandler.Profile, authMid.Handle))
	router.GET(base+"/user/activity", chain(deps.UserHandler.Activity, authMid.Handle))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, errRouteNotFound)
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		hlog.FromRequest(r).Error().Interface("panic", v).Msg("handler panicked")
		apperrors.WriteError(w, apperrors.New(apperrors.KindInternal, "Internal server error"))
	}

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	var h http.Handler = withAuditRequest(router)
	h = hlog.AccessHandler(accessLog)(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("request_id", "X-Request-Id")(h)
	h = hlog.NewHandler(logger)(h)
	return h
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func withAuditRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithRequest(r.Context(), r)))
	})
}

func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// wrap exposes httprouter params through the request context.
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
