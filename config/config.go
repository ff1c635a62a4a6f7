package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Database  DatabaseConfig  `envPrefix:"DB_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	AWS       AWSConfig       `envPrefix:"AWS_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Web       WebConfig       `envPrefix:"WEB_"`
	Worker    WorkerConfig    `envPrefix:"WORKER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Port               string `env:"PORT" envDefault:"4291"`
	ReadTimeoutSec     int    `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeoutSec    int    `env:"WRITE_TIMEOUT_SEC" envDefault:"30"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:3847"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL           string `env:"URL"` // used as-is when set
	Host          string `env:"HOST" envDefault:"localhost"`
	Port          string `env:"PORT" envDefault:"5432"`
	User          string `env:"USER" envDefault:"postgres"`
	Password      string `env:"PASSWORD" envDefault:"postgres"`
	Name          string `env:"NAME" envDefault:"slotmarket"`
	SSLMode       string `env:"SSLMODE" envDefault:"disable"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// AuthConfig holds session settings.
type AuthConfig struct {
	Secret             string        `env:"SECRET" envDefault:"change-me-in-production"`
	SessionTTLHours    int           `env:"SESSION_TTL_HOURS" envDefault:"168"`
	PrincipalCacheTTL  time.Duration `env:"PRINCIPAL_CACHE_TTL" envDefault:"60s"`
	SessionCookieNames []string      `env:"SESSION_COOKIE_NAMES" envSeparator:"," envDefault:"better-auth.session_token,better-auth.session-token"`
}

// AWSConfig holds AWS credentials and the asset bucket.
type AWSConfig struct {
	Region          string `env:"REGION"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	AssetsBucket    string `env:"S3_ASSETS_BUCKET" envDefault:"slotmarket-assets"`
}

// RateLimitConfig mirrors the public API quota: Requests per Window per client.
type RateLimitConfig struct {
	Requests int           `env:"REQUESTS" envDefault:"100"`
	Window   time.Duration `env:"WINDOW" envDefault:"15m"`
}

// WebConfig holds settings for the frontend action server.
type WebConfig struct {
	Port         string        `env:"PORT" envDefault:"3847"`
	APIURL       string        `env:"API_URL" envDefault:"http://localhost:4291/api"`
	PageCacheTTL time.Duration `env:"PAGE_CACHE_TTL" envDefault:"30s"`
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10m"`
	MaxLogoBytes         int64         `env:"MAX_LOGO_BYTES" envDefault:"5242880"`
	MetricsPort          string        `env:"METRICS_PORT" envDefault:"9091"`
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// DSN returns the PostgreSQL connection string.
// If URL is set (DB_URL) it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// SessionTTL returns the lifetime of newly issued sessions.
func (c AuthConfig) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c ServerConfig) AllowedOrigins() []string {
	var out []string
	for _, v := range strings.Split(c.CORSAllowedOrigins, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// S3Enabled reports whether enough AWS settings are present to build an S3 client.
func (c AWSConfig) S3Enabled() bool {
	return c.Region != "" && c.AssetsBucket != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RateLimit.Requests <= 0 || cfg.RateLimit.Window <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d per %s", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	return &cfg, nil
}
