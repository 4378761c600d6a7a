package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL"`

	// Telegram delivery; disabled when empty
	BotToken string `env:"BOT_TOKEN"`

	// Logging
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	LogTelegramChatID    int64  `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError        int    `env:"LOG_TOPIC_ERROR"`
	LogTopicSettlement   int    `env:"LOG_TOPIC_SETTLEMENT"`
	LogTopicCancellation int    `env:"LOG_TOPIC_CANCELLATION"`

	// Metrics
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9102"`

	// Settlement sweep
	SweepSchedule  string `env:"SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`
	SweepBatchSize int    `env:"SWEEP_BATCH_SIZE" envDefault:"50"`

	// Change feed
	WatchGroupIDs     []string      `env:"WATCH_GROUP_IDS" envSeparator:","`
	ReconcileDebounce time.Duration `env:"RECONCILE_DEBOUNCE" envDefault:"2s"`

	// Settlement rules
	DeadlineTZ    string        `env:"DEADLINE_TZ" envDefault:"UTC"`
	PayoutScale   int32         `env:"PAYOUT_SCALE" envDefault:"2"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	deadlineLoc *time.Location
	watchGroups []uuid.UUID
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.DeadlineTZ)
	if err != nil {
		return nil, fmt.Errorf("load deadline timezone %q: %w", cfg.DeadlineTZ, err)
	}
	cfg.deadlineLoc = loc

	if cfg.PayoutScale < 0 || cfg.PayoutScale > MaxPayoutScale {
		return nil, fmt.Errorf("payout scale %d out of range 0..%d", cfg.PayoutScale, MaxPayoutScale)
	}

	for _, raw := range cfg.WatchGroupIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse watch group id %q: %w", raw, err)
		}
		cfg.watchGroups = append(cfg.watchGroups, id)
	}

	return cfg, nil
}

// DeadlineLocation is the zone in which offer deadlines are calendar dates.
func (c *Config) DeadlineLocation() *time.Location {
	if c.deadlineLoc == nil {
		return time.UTC
	}
	return c.deadlineLoc
}

func (c *Config) WatchGroups() []uuid.UUID {
	return c.watchGroups
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) TelegramEnabled() bool {
	return c.BotToken != ""
}
