// Package history implements the History Store, an ambient audit trail
// recording every check verdict and profile lifecycle transition, backed
// by GORM the way the teacher's internal/database package configures its
// connection: functional options over a Config, postgres in production,
// sqlite in tests.
//
// This component has no counterpart in spec.md's distilled scope; it
// exists so the module keeps exercising gorm.io/gorm and its postgres
// driver, which the original system used pervasively for durable records,
// rather than dropping them for lack of a queue/cooldown-store fit (see
// DESIGN.md).
package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event is one persisted history record: a check verdict or a profile
// lifecycle transition.
type Event struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SteamID    string `gorm:"index;not null"`
	Check      string `gorm:"index"`
	Kind       string `gorm:"not null"` // "check_result" | "accepted" | "rejected"
	Passed     bool
	Details    string `gorm:"type:text"`
	RecordedAt int64  `gorm:"index;not null"`
}

// Config configures SetupDB, following the teacher's functional-options
// database bootstrap.
type Config struct {
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
}

// Option mutates a Config at construction time.
type Option func(*Config)

// WithDialector overrides the GORM dialector, used by tests to swap in
// sqlite in-memory.
func WithDialector(d gorm.Dialector) Option {
	return func(c *Config) { c.Dialector = d }
}

// WithAutoMigrate toggles schema auto-migration.
func WithAutoMigrate(enabled bool) Option {
	return func(c *Config) { c.AutoMigrate = enabled }
}

func defaultConfig() Config {
	return Config{
		Logger:      silentLogger(),
		AutoMigrate: true,
	}
}

// SetupDB opens the History Store's GORM connection and migrates its
// schema.
func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dialector == nil {
		return nil, fmt.Errorf("history: no dialector provided")
	}

	db, err := gorm.Open(cfg.Dialector, &gorm.Config{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("history: open connection: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&Event{}); err != nil {
			return nil, fmt.Errorf("history: auto migrate: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func silentLogger() logger.Interface {
	return logger.New(log.Default(), logger.Config{LogLevel: logger.Silent})
}
