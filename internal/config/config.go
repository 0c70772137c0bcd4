// Package config defines process configuration for both the salesgrid server
// and the gridctl client, and how it is loaded.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration. Server and client read the same
// flat key space; each binary only looks at the keys it needs.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the sqlite database file.
	DBPath string `koanf:"db_path"`

	// DBPoolSize bounds the number of open sqlite connections.
	DBPoolSize int `koanf:"db_pool_size"`

	// SessionTTL is how long a login stays valid.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// AdminUsername and AdminPassword seed the first admin account.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	// ArchiveSecret authorises POST /api/weekly-archive via X-SECRET-KEY.
	// Empty disables header-based archiving.
	ArchiveSecret string `koanf:"archive_secret"`

	// DailySummaryAt is the local HH:MM after which the day's sales are stored.
	DailySummaryAt string `koanf:"daily_summary_at"`

	// SchedulerInterval is how often the background scheduler wakes up.
	SchedulerInterval time.Duration `koanf:"scheduler_interval"`

	// DedupeSize bounds the cell-save request id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// BaseURL is the server the client talks to.
	BaseURL string `koanf:"base_url"`

	// Username and Password are the client's credentials.
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// Table is the sheet the client opens first.
	Table string `koanf:"table"`

	// RefreshInterval is the reconciliation loop period.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// RequestTimeout bounds each client HTTP request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// SaveWorkers is the number of concurrent cell-save senders.
	SaveWorkers int `koanf:"save_workers"`

	// SaveQueueSize bounds pending cell saves.
	SaveQueueSize int `koanf:"save_queue_size"`

	// SaveRetries is how many times a save is retried after a transport error.
	SaveRetries int `koanf:"save_retries"`

	// SaveBackoff is the first retry delay; it doubles on every attempt.
	SaveBackoff time.Duration `koanf:"save_backoff"`

	// NoticeTTL is how long a user notice stays visible.
	NoticeTTL time.Duration `koanf:"notice_ttl"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8080",
		DBPath:            "salesgrid.db",
		DBPoolSize:        4,
		SessionTTL:        12 * time.Hour,
		AdminUsername:     "admin",
		AdminPassword:     "admin123",
		DailySummaryAt:    "23:59",
		SchedulerInterval: time.Minute,
		DedupeSize:        50_000,
		BaseURL:           "http://localhost:8080",
		Table:             "portabilidade",
		RefreshInterval:   30 * time.Second,
		RequestTimeout:    10 * time.Second,
		SaveWorkers:       4,
		SaveQueueSize:     256,
		SaveRetries:       3,
		SaveBackoff:       500 * time.Millisecond,
		NoticeTTL:         4 * time.Second,
	}
}

// Validate checks the values both binaries depend on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.SessionTTL <= 0:
		return fmt.Errorf("%w: session_ttl must be positive", ErrInvalidConfig)
	case c.SchedulerInterval <= 0:
		return fmt.Errorf("%w: scheduler_interval must be positive", ErrInvalidConfig)
	case c.RefreshInterval <= 0:
		return fmt.Errorf("%w: refresh_interval must be positive", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	case c.SaveWorkers < 1:
		return fmt.Errorf("%w: save_workers must be at least 1", ErrInvalidConfig)
	case c.SaveQueueSize < 1:
		return fmt.Errorf("%w: save_queue_size must be at least 1", ErrInvalidConfig)
	case c.SaveRetries < 0:
		return fmt.Errorf("%w: save_retries must not be negative", ErrInvalidConfig)
	}
	if _, _, err := c.DailySummaryClock(); err != nil {
		return err
	}
	return nil
}

// DailySummaryClock parses DailySummaryAt into hour and minute.
func (c *Config) DailySummaryClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.DailySummaryAt))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: daily_summary_at %q is not HH:MM", ErrInvalidConfig, c.DailySummaryAt)
	}
	return t.Hour(), t.Minute(), nil
}
