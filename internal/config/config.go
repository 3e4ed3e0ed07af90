package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Site      SiteConfig      `yaml:"site"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Sending   SendingConfig   `yaml:"sending"`
	Media     MediaConfig     `yaml:"media"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// AllowedOrigins feeds the CORS middleware; "*" during development.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the listen host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings. Redis backs distributed
// locks, the content cache, and SMTP daily-limit counters; everything
// degrades gracefully when it is absent.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// SiteConfig holds public-facing site parameters used in generated links.
type SiteConfig struct {
	// BaseURL is the externally reachable root of the API, used for
	// confirmation and tracking links (no trailing slash).
	BaseURL string `yaml:"base_url"`
	// DefaultLanguage for subscribers and anonymous content requests.
	DefaultLanguage string `yaml:"default_language"`
}

// TrackingConfig holds engagement tracking settings.
type TrackingConfig struct {
	// Secret signs tracking keys. Rotating it invalidates in-flight
	// pixel and click URLs, so rotate only between campaigns.
	Secret string `yaml:"secret"`
}

// SendingConfig tunes the campaign send pipeline.
type SendingConfig struct {
	WorkerCount           int `yaml:"worker_count"`
	BatchSize             int `yaml:"batch_size"`
	MaxAttempts           int `yaml:"max_attempts"`
	RetryBackoffSeconds   int `yaml:"retry_backoff_seconds"`
	SchedulerIntervalSec  int `yaml:"scheduler_interval_seconds"`
	AutomationIntervalSec int `yaml:"automation_interval_seconds"`
	SMTPTimeoutSeconds    int `yaml:"smtp_timeout_seconds"`
}

// RetryBackoff returns the base retry backoff as a duration.
func (c SendingConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// SchedulerInterval returns the campaign scheduler poll interval.
func (c SendingConfig) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSec) * time.Second
}

// AutomationInterval returns the automation executor poll interval.
func (c SendingConfig) AutomationInterval() time.Duration {
	return time.Duration(c.AutomationIntervalSec) * time.Second
}

// SMTPTimeout returns the per-message SMTP dial/send timeout.
func (c SendingConfig) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

// MediaConfig holds image storage settings. When the bucket is empty,
// uploads fall back to the local directory.
type MediaConfig struct {
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	AWSProfile string `yaml:"aws_profile"`
	CDNBaseURL string `yaml:"cdn_base_url"`
	LocalDir   string `yaml:"local_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads configuration from a YAML file and applies defaults.
// A missing file is not an error; defaults plus env overrides are enough
// to run in a container.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Site.BaseURL == "" {
		cfg.Site.BaseURL = "http://localhost:8080"
	}
	if cfg.Site.DefaultLanguage == "" {
		cfg.Site.DefaultLanguage = "en"
	}
	if cfg.Sending.WorkerCount == 0 {
		cfg.Sending.WorkerCount = 4
	}
	if cfg.Sending.BatchSize == 0 {
		cfg.Sending.BatchSize = 50
	}
	if cfg.Sending.MaxAttempts == 0 {
		cfg.Sending.MaxAttempts = 3
	}
	if cfg.Sending.RetryBackoffSeconds == 0 {
		cfg.Sending.RetryBackoffSeconds = 60
	}
	if cfg.Sending.SchedulerIntervalSec == 0 {
		cfg.Sending.SchedulerIntervalSec = 15
	}
	if cfg.Sending.AutomationIntervalSec == 0 {
		cfg.Sending.AutomationIntervalSec = 30
	}
	if cfg.Sending.SMTPTimeoutSeconds == 0 {
		cfg.Sending.SMTPTimeoutSeconds = 30
	}
	if cfg.Media.LocalDir == "" {
		cfg.Media.LocalDir = "./media"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SECRET"); v != "" {
		cfg.Tracking.Secret = v
	}
	if v := os.Getenv("MEDIA_S3_BUCKET"); v != "" {
		cfg.Media.S3Bucket = v
	}
	if v := os.Getenv("MEDIA_S3_REGION"); v != "" {
		cfg.Media.S3Region = v
	}
	if v := os.Getenv("MEDIA_CDN_BASE_URL"); v != "" {
		cfg.Media.CDNBaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
