// Package bootstrap wires together the service's components at startup,
// grounded on the teacher's internal/app/bootstrap.Setup: config loaded
// first, persisted stores opened next, then the components that depend on
// them.
package bootstrap

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"steamgate/internal/config"
	"steamgate/internal/cooldown"
	"steamgate/internal/dispatcher"
	"steamgate/internal/domain"
	"steamgate/internal/healthjudge"
	"steamgate/internal/history"
	"steamgate/internal/ingest"
	"steamgate/internal/queue"
	"steamgate/internal/registry"
	"steamgate/internal/scheduler"
	"steamgate/internal/validator"
)

// Components holds every wired, ready-to-run component main needs to
// start the scheduler, health judge, history recorder, and API server.
type Components struct {
	Settings    config.Settings
	Registry    *registry.Registry
	Cooldowns   *cooldown.Store
	Queue       *queue.Store
	Scheduler   *scheduler.Scheduler
	HealthJudge *healthjudge.Judge
	History     *history.Recorder
}

// Setup loads configuration, opens the persisted stores, and constructs
// every long-lived component. It does not start any goroutines; that is
// cmd/steamgate/main.go's responsibility once all components exist.
func Setup() (*Components, error) {
	settings := config.Load()

	reg := registry.New(settings.ConnectionsPath)
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("bootstrap: load connection registry: %w", err)
	}

	fixedDurations := map[domain.CooldownReason]int64{
		domain.ReasonConnectionReset: settings.CooldownConnectionResetMs,
		domain.ReasonTimeout:         settings.CooldownTimeoutMs,
		domain.ReasonDNSFailure:      settings.CooldownDNSFailureMs,
		domain.ReasonSOCKSError:      settings.CooldownSOCKSErrorMs,
		domain.ReasonPermanent:       settings.CooldownPermanentMs,
	}
	cooldowns := cooldown.New(settings.CooldownsPath, settings.BackoffSequenceMinutes, fixedDurations)
	if err := cooldowns.Load(); err != nil {
		return nil, fmt.Errorf("bootstrap: load cooldown store: %w", err)
	}
	reg.OnRenumber(func(old, new []domain.Connection) {
		if err := cooldowns.Resync(old, new); err != nil {
			log.Error("bootstrap: cooldown resync after registry change failed", "error", err)
		}
	})

	q := queue.New(settings.QueuePath)

	disp := dispatcher.New(reg, cooldowns, settings.InventoryTimeout, settings.DefaultTimeout, settings.MinInterCallGap)
	val := validator.New()
	ing := ingest.New(settings.DownstreamIngestURL, settings.DownstreamAPICredential, settings.DefaultTimeout)

	buildURL := func(check domain.CheckName, steamID string) string {
		return dispatcher.BuildUpstreamURL(check, steamID, settings.UpstreamAPICredential)
	}

	sched := scheduler.New(
		q, cooldowns, reg, disp, val, ing, buildURL,
		settings.ProcessingDelay, settings.EmptyQueueDelay, settings.ReactivationPeriod,
	)

	judge := healthjudge.New(reg, settings.HealthCheckInterval, settings.HealthCheckTimeout)

	db, err := history.SetupDB(history.WithDialector(historyDialector(settings.HistoryDSN)))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: set up history store: %w", err)
	}
	recorder := history.NewRecorder(db)
	sched.SetHistory(recorder)

	return &Components{
		Settings:    settings,
		Registry:    reg,
		Cooldowns:   cooldowns,
		Queue:       q,
		Scheduler:   sched,
		HealthJudge: judge,
		History:     recorder,
	}, nil
}

// historyDialector picks postgres for a "postgres://"/"postgresql://" DSN
// and falls back to sqlite (used for local runs and tests) for anything
// else.
func historyDialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}
