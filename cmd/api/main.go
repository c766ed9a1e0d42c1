package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/lzajac/airdata/internal/config"
	"github.com/lzajac/airdata/internal/httpapi"
	"github.com/lzajac/airdata/internal/logging"
	"github.com/lzajac/airdata/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("db connection error", "error", err)
	}
	defer st.Close()

	srv := httpapi.New(cfg, st)
	logger.Infow("REST API listening", "addr", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		logger.Fatalw("server error", "error", err)
	}
}
