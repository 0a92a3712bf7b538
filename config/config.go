package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Session  SessionConfig
	Redis    RedisConfig
	Database DatabaseConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	SendBuffer         int    // per-connection outbound queue length
}

// SessionConfig holds polling session settings.
type SessionConfig struct {
	DefaultDurationSec  int
	BroadcastIntervalMS int
}

// DefaultDuration returns the fallback question duration.
func (c SessionConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationSec) * time.Second
}

// BroadcastInterval returns the periodic state broadcast period.
func (c SessionConfig) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMS) * time.Millisecond
}

// RedisConfig holds Redis connection settings. Redis is optional.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string // prefix for pub/sub channels
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// DatabaseConfig holds PostgreSQL settings for the results export. Optional.
type DatabaseConfig struct {
	URL string // e.g. postgres://localhost:5432/livepoll?sslmode=disable
}

// Enabled reports whether a database URL is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string { return c.URL }

// AWSConfig holds AWS credentials and the S3 bucket for exported results. Optional.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ResultsBucket   string
	// PresignExpireMinutes is the lifetime of result download URLs.
	PresignExpireMinutes int
}

// Enabled reports whether S3 export is configured.
func (c AWSConfig) Enabled() bool { return c.Region != "" && c.ResultsBucket != "" }

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "4000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			SendBuffer:         getEnvInt("CLIENT_SEND_BUFFER", 256),
		},
		Session: SessionConfig{
			DefaultDurationSec:  getEnvInt("QUESTION_DEFAULT_DURATION_SEC", 60),
			BroadcastIntervalMS: getEnvInt("BROADCAST_INTERVAL_MS", 1000),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "livepoll:session"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ResultsBucket:        getEnv("AWS_S3_RESULTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid PORT (must be between 1-65535 inclusive): %q", c.Server.Port)
	}
	if c.Session.DefaultDurationSec <= 0 {
		return fmt.Errorf("QUESTION_DEFAULT_DURATION_SEC must be positive: %d", c.Session.DefaultDurationSec)
	}
	if c.AWS.PresignExpireMinutes <= 0 {
		return fmt.Errorf("AWS_PRESIGN_EXPIRE_MINUTES must be positive: %d", c.AWS.PresignExpireMinutes)
	}
	if c.Session.BroadcastIntervalMS <= 0 {
		return fmt.Errorf("BROADCAST_INTERVAL_MS must be positive: %d", c.Session.BroadcastIntervalMS)
	}
	return nil
}

// AllowedOrigins splits CORSAllowedOrigins into trimmed entries.
func (c ServerConfig) AllowedOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
