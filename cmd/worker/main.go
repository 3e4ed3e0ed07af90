package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/config"
	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
	"github.com/Ibrahimamir22/archway/internal/worker"
)

// The worker binary runs the three background loops: the campaign
// scheduler, the delivery send pool, and the automation step executor.
// It can run alongside the API server or on its own host; every loop
// claims work with row locks, so extra replicas are safe.
func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()
	logger.Info("database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, campaign locks fall back to postgres", "error", err)
		}
	}

	store := newsletter.NewStore(db)
	renderer := newsletter.NewRenderer()
	trackingSvc := newsletter.NewTrackingService(cfg.Tracking.Secret, cfg.Site.BaseURL)
	sender := mailer.NewSMTPSender(mailer.NewStore(db), redisClient, cfg.Sending.SMTPTimeout())
	autoStore := automation.NewStore(db)

	scheduler := worker.NewCampaignScheduler(store, cfg.Sending.SchedulerInterval())
	scheduler.SetRedisClient(redisClient)

	pool := worker.NewSendWorkerPool(store, renderer, trackingSvc, sender, worker.SendPoolConfig{
		Workers:      cfg.Sending.WorkerCount,
		BatchSize:    cfg.Sending.BatchSize,
		MaxAttempts:  cfg.Sending.MaxAttempts,
		RetryBackoff: cfg.Sending.RetryBackoff(),
	})

	executor := worker.NewStepExecutor(autoStore, store, renderer, sender,
		cfg.Site.BaseURL, cfg.Sending.AutomationInterval())

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start campaign scheduler: %v", err)
	}
	if err := pool.Start(); err != nil {
		log.Fatalf("Failed to start send pool: %v", err)
	}
	if err := executor.Start(); err != nil {
		log.Fatalf("Failed to start automation executor: %v", err)
	}
	logger.Info("worker started",
		"send_workers", cfg.Sending.WorkerCount,
		"batch_size", cfg.Sending.BatchSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	executor.Stop()
	pool.Stop()
	scheduler.Stop()

	sent, failed := pool.Stats()
	logger.Info("worker stopped", "sent", sent, "failed", failed)
}
