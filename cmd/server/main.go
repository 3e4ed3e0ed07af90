package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/Ibrahimamir22/archway/internal/api"
	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/config"
	"github.com/Ibrahimamir22/archway/internal/content"
	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/media"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use,
// so a stale process doesn't silently swallow requests.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
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
			logger.Warn("redis unreachable, caching and locks degrade to postgres", "error", err)
		} else {
			logger.Info("redis connected")
		}
	}

	store := newsletter.NewStore(db)
	renderer := newsletter.NewRenderer()
	trackingSvc := newsletter.NewTrackingService(cfg.Tracking.Secret, cfg.Site.BaseURL)
	mailerStore := mailer.NewStore(db)
	sender := mailer.NewSMTPSender(mailerStore, redisClient, cfg.Sending.SMTPTimeout())

	news := newsletter.NewService(store, sender, renderer, cfg.Site.BaseURL)
	engine := automation.NewEngine(automation.NewStore(db))
	news.SetAutomationTrigger(engine)

	contentStore := content.NewCachedStore(content.NewStore(db), redisClient)

	var uploader *media.Uploader
	if cfg.Media.S3Bucket != "" {
		blob, err := media.NewS3Store(context.Background(), cfg.Media.S3Bucket,
			cfg.Media.S3Region, cfg.Media.AWSProfile, cfg.Media.CDNBaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize S3 media storage: %v", err)
		}
		uploader = media.NewUploader(blob)
	} else if cfg.Media.LocalDir != "" {
		uploader = media.NewUploader(media.NewLocalStore(cfg.Media.LocalDir, cfg.Site.BaseURL))
	}

	handlers := api.NewHandlers(db, news, store, trackingSvc,
		automation.NewStore(db), mailerStore, sender, contentStore, uploader)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins)

	srv := api.NewServer(cfg.Server.Addr(), router)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.Server.Addr())
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
