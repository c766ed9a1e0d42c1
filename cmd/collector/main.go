package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lzajac/airdata/internal/airly"
	"github.com/lzajac/airdata/internal/collector"
	"github.com/lzajac/airdata/internal/config"
	"github.com/lzajac/airdata/internal/csvsink"
	"github.com/lzajac/airdata/internal/forward"
	"github.com/lzajac/airdata/internal/logging"
	"github.com/lzajac/airdata/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single collection cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	fetcher := airly.New(httpClient, cfg.AirlyURL(), cfg.AirlyAPIKey)

	var db collector.Inserter
	if cfg.EnableDatabase {
		if err := cfg.RequireDatabase(); err != nil {
			logger.Fatalw("config error", "error", err)
		}
		st, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalw("db connection error", "error", err)
		}
		defer st.Close()
		db = st
	}

	var audit collector.AuditSink
	if cfg.EnableCSV {
		audit = csvsink.New(cfg.CSVFile)
	}

	var fwd collector.Forwarder
	if cfg.EnableForward {
		fwd = forward.New(cfg.ForwardURL, cfg.ForwardSensorID, cfg.ForwardAltitude, cfg.ForwardVerifySSL, cfg.RequestTimeout)
	}

	col := collector.New(cfg, fetcher, db, audit, fwd, logger)

	if *once {
		if err := col.RunOnce(ctx); err != nil {
			logger.Errorw("collection failed", "error", err)
			os.Exit(1)
		}
		logger.Info("single collection completed")
		return
	}

	if err := col.Run(ctx); err != nil {
		logger.Fatalw("collector error", "error", err)
	}
}
