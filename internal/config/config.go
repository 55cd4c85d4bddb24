// Package config loads service configuration from environment variables,
// an optional .env file, and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all tunables for the statement engine.
type Config struct {
	// ListenAddr is the HTTP listen address for cmd/api.
	ListenAddr string

	// DatabasePath is the SQLite database file (":memory:" for ephemeral).
	DatabasePath string

	// UploadDir is where raw statement uploads are kept for the worker.
	UploadDir string

	// MaxUploadMB rejects uploads larger than this before a statement is
	// created.
	MaxUploadMB int

	// ExtractTimeout bounds a single extraction attempt.
	ExtractTimeout time.Duration

	// WorkerCount is the number of concurrent pipeline workers.
	WorkerCount int

	// QueueSize is the job queue buffer size.
	QueueSize int

	// ReprocessSchedule is an optional cron expression that triggers a full
	// reprocess pass on a schedule. Empty disables scheduling.
	ReprocessSchedule string
}

// Load reads configuration with sane defaults. A .env file in the working
// directory is applied first when present; environment variables use the
// STMT_ prefix (STMT_LISTEN_ADDR, STMT_DATABASE_PATH, ...).
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STMT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_path", "statements.db")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("max_upload_mb", 20)
	v.SetDefault("extract_timeout", "2m")
	v.SetDefault("worker_count", 5)
	v.SetDefault("queue_size", 100)
	v.SetDefault("reprocess_schedule", "")

	cfg := Config{
		ListenAddr:        v.GetString("listen_addr"),
		DatabasePath:      v.GetString("database_path"),
		UploadDir:         v.GetString("upload_dir"),
		MaxUploadMB:       v.GetInt("max_upload_mb"),
		ExtractTimeout:    v.GetDuration("extract_timeout"),
		WorkerCount:       v.GetInt("worker_count"),
		QueueSize:         v.GetInt("queue_size"),
		ReprocessSchedule: v.GetString("reprocess_schedule"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB)
	}
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("extract_timeout must be positive, got %s", c.ExtractTimeout)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
