package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"salonbook/internal/app"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/pkg/logger"
)

// booking_expiry rejects PENDING bookings older than PENDING_EXPIRY once and
// exits. Suitable for cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.PendingExpiry <= 0 {
		zl.Info("PENDING_EXPIRY is not set, nothing to do")
		return
	}

	db, err := database.Connect(cfg.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("database connect failed", zap.Error(err))
	}

	a := app.New(cfg, db, zl, app.Options{})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	n, err := a.Expirer.RunOnce(ctx)
	if err != nil {
		zl.Fatal("booking expiry failed", zap.Error(err))
	}
	zl.Info("booking expiry completed", zap.Int("expired", n))
}
