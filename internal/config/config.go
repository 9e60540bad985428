// package config provides a minimal environment-backed configuration loader
// used by the service bootstrap (cmd/audittrail/main.go).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime config values used by main.go.
type Config struct {
	DatabaseURL string // DATABASE_URL
	ListenAddr  string // LISTEN_ADDR (default :8080)
	ArchiveDir  string // ARCHIVE_DIR (file store fallback, default ./archive)

	// Grace-period window for the bulk-import display filter.
	GracePeriod time.Duration // GRACE_PERIOD_HOURS

	// Actor-token extraction.
	AuthSecret  string // AUTH_SECRET (HS256 shared secret)
	RequireAuth bool   // REQUIRE_AUTH

	// Mirror pipeline (all three of brokers/topic/bucket must be set).
	KafkaBrokers string // KAFKA_BROKERS (comma-separated)
	KafkaTopic   string // KAFKA_TOPIC
	S3Bucket     string // S3_BUCKET
	S3Prefix     string // S3_PREFIX (optional)

	StreamBatchSize      int           // STREAM_BATCH_SIZE
	StreamMaxConcurrency int           // STREAM_MAX_CONCURRENCY
	StreamPollInterval   time.Duration // STREAM_POLL_INTERVAL_SECONDS
}

// LoadFromEnv reads config values from environment variables and returns a
// Config pointer with defaults applied.
func LoadFromEnv() *Config {
	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		ArchiveDir:   os.Getenv("ARCHIVE_DIR"),
		AuthSecret:   os.Getenv("AUTH_SECRET"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Prefix:     os.Getenv("S3_PREFIX"),
	}

	// sensible defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "./archive"
	}

	cfg.GracePeriod = 24 * time.Hour
	if v := os.Getenv("GRACE_PERIOD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GracePeriod = time.Duration(n) * time.Hour
		}
	}

	if v := os.Getenv("REQUIRE_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RequireAuth = b
		}
	}

	cfg.StreamBatchSize = 10
	if v := os.Getenv("STREAM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamBatchSize = n
		}
	}
	cfg.StreamMaxConcurrency = 5
	if v := os.Getenv("STREAM_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamMaxConcurrency = n
		}
	}
	cfg.StreamPollInterval = 3 * time.Second
	if v := os.Getenv("STREAM_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamPollInterval = time.Duration(n) * time.Second
		}
	}

	return cfg
}
