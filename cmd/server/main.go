package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"tasker/internal/api"
	"tasker/internal/api/handlers"
	"tasker/internal/api/middleware"
	"tasker/internal/engine/apikeys"
	"tasker/internal/engine/eventhorizon"
	"tasker/internal/engine/sessions"
	"tasker/internal/pkg/detach"
	"tasker/internal/pkg/logger"
	"tasker/internal/pkg/metrics"
	"tasker/internal/pkg/validator"
	"tasker/internal/platform/audit"
	"tasker/internal/platform/auth"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database"
	"tasker/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	if cfg.JWT.Secret == "" {
		log.Warn().Msg("jwt.secret is empty; token endpoints will fail until it is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, "up"); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	m := metrics.New()
	supervisor := detach.New(cfg.Detach.MaxConcurrent, cfg.Detach.Timeout, m)
	repos := repositories.NewManager()
	tokens := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(db, repos, supervisor)
	v := validator.New()

	checks := map[string]handlers.Check{"database": db.PingContext}

	var nonces eventhorizon.NonceStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis.url")
		}
		client := redis.NewClient(opts)
		defer client.Close()

		nonces = eventhorizon.NewRedisNonceStore(client)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		memory := eventhorizon.NewMemoryNonceStore()
		go memory.Run(ctx, time.Minute)
		nonces = memory
	}

	sessionSvc := sessions.NewService(sessions.Deps{
		DB:         db.DB,
		Repos:      repos,
		Tokens:     tokens,
		Hasher:     auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
		Audit:      auditLog,
		Metrics:    m,
	})
	keySvc := apikeys.NewService(apikeys.Deps{
		DB:         db,
		Repos:      repos,
		Supervisor: supervisor,
		Prefix:     cfg.APIKeys.Prefix,
		MaxPerUser: cfg.APIKeys.MaxPerUser,
		Audit:      auditLog,
		Metrics:    m,
	})
	coordinator := eventhorizon.NewCoordinator(eventhorizon.Deps{
		Config:   cfg.EventHorizon,
		Tokens:   tokens,
		Sessions: sessionSvc,
		DB:       db.DB,
		Repos:    repos,
		Nonces:   nonces,
		Audit:    auditLog,
		Metrics:  m,
	})

	limiter := middleware.NewRateLimiter()
	go limiter.Run(ctx, 10*time.Minute)

	router := api.NewRouter(&api.Dependencies{
		BasePath:       cfg.Server.BasePath,
		AuthPerMinute:  cfg.RateLimit.AuthPerMinute,
		AuthHandler:    handlers.NewAuthHandler(sessionSvc, v),
		OAuthHandler:   handlers.NewOAuthHandler(coordinator, v),
		APIKeyHandler:  handlers.NewAPIKeyHandler(keySvc, v),
		UserHandler:    handlers.NewUserHandler(sessionSvc, repos.Audit(db)),
		HealthHandler:  handlers.NewHealthHandler(checks),
		MetricsHandler: handlers.NewMetricsHandler(m.Handler()),
		AuthMiddleware: middleware.NewAuthMiddleware(tokens, keySvc),
		RateLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.Server.BasePath).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	supervisor.Wait()
}
