package main

import (
	"context"
	"log"

	"github.com/kellerb/sam-watch/internal/api"
	"github.com/kellerb/sam-watch/internal/auth"
	"github.com/kellerb/sam-watch/internal/config"
	"github.com/kellerb/sam-watch/internal/db"
	"github.com/kellerb/sam-watch/internal/logger"
	"github.com/kellerb/sam-watch/internal/notify"
	"github.com/kellerb/sam-watch/internal/pricing"
	"github.com/kellerb/sam-watch/internal/samgov"
	"github.com/kellerb/sam-watch/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, zlog); err != nil {
		zlog.Fatalw("Migration failed", "error", err)
	}

	store := db.NewStore(pool)
	authService := auth.NewService(pool)
	if err := authService.EnsureUser(ctx, cfg.AdminEmail, cfg.AdminPassword, "admin"); err != nil {
		zlog.Warnw("Seeding admin account failed", "error", err)
	}

	client := samgov.NewClient(cfg.SAMAPIKey, zlog)
	mailer := notify.NewMailer(cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret, cfg.GraphSender, zlog)
	orchestrator := syncer.NewOrchestrator(client, store, store, mailer, store, zlog)

	families, err := pricing.LoadFamilyMap("")
	if err != nil {
		zlog.Fatalw("Loading family map failed", "error", err)
	}
	engine := pricing.NewEngine(store, client, families, zlog)

	scheduler := syncer.NewScheduler(orchestrator, store, zlog)
	if err := scheduler.Start(ctx); err != nil {
		zlog.Fatalw("Starting scheduler failed", "error", err)
	}
	defer scheduler.Stop()

	srv := api.NewServer(store, authService, orchestrator, engine, client, zlog)
	zlog.Infow("Server starting", "port", cfg.Port)
	if err := srv.Start(cfg.Port); err != nil {
		zlog.Fatalw("Server exited", "error", err)
	}
}
