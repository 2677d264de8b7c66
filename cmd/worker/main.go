package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"tasker/internal/pkg/logger"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database"
	"tasker/internal/platform/repositories"
	"tasker/internal/workers"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run every job a single time and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	purger := workers.NewTokenPurger(db, repositories.NewManager())

	if *once {
		if _, err := purger.PurgeExpiredRefreshTokens(ctx); err != nil {
			log.Fatal().Err(err).Msg("refresh token purge failed")
		}
		return
	}

	log.Info().Dur("interval", cfg.Worker.PurgeInterval).Msg("worker starting")
	workers.Every(ctx, "refresh_token_purge", cfg.Worker.PurgeInterval, func(ctx context.Context) error {
		_, err := purger.PurgeExpiredRefreshTokens(ctx)
		return err
	})
	log.Info().Msg("worker stopped")
}
