package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/config"
	"github.com/dauTT/astroport-dca/internal/db"
	"github.com/dauTT/astroport-dca/internal/logging"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Store.DSN == "" {
		logger.Fatal("store.dsn is required")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Store.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
}
