// Package config holds the ambient, environment-driven tunables of the
// service: timers, the 429 backoff sequence, and the fixed cooldown
// durations per failure category. The three JSON-file-backed stores
// (connections, cooldowns, queue) own their own persistence and are not
// modeled here — see internal/registry, internal/cooldown, internal/queue.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Settings is the process-wide tunable configuration, loaded once from
// environment variables at startup and held behind an atomic.Value the
// same way internal/config/settings.go's teacher pattern holds Config.
type Settings struct {
	BackoffSequenceMinutes []int

	CooldownConnectionResetMs int64
	CooldownTimeoutMs         int64
	CooldownDNSFailureMs      int64
	CooldownSOCKSErrorMs      int64
	CooldownPermanentMs       int64

	MinInterCallGap    time.Duration
	InventoryTimeout   time.Duration
	DefaultTimeout     time.Duration
	EmptyQueueDelay    time.Duration
	ProcessingDelay    time.Duration
	ReactivationPeriod time.Duration

	ListenHost string
	ListenPort int

	UpstreamAPICredential   string
	DownstreamAPICredential string
	DownstreamIngestURL     string

	ConnectionsPath string
	CooldownsPath   string
	QueuePath       string

	HistoryDSN          string
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}

var defaultBackoffSequence = []int{1, 2, 4, 8, 16, 32, 60, 120, 240, 480}

func defaultSettings() Settings {
	return Settings{
		BackoffSequenceMinutes:    append([]int(nil), defaultBackoffSequence...),
		CooldownConnectionResetMs: 5 * 60 * 1000,
		CooldownTimeoutMs:         5 * 60 * 1000,
		CooldownDNSFailureMs:      10 * 60 * 1000,
		CooldownSOCKSErrorMs:      5 * 60 * 1000,
		CooldownPermanentMs:       24 * 60 * 60 * 1000,
		MinInterCallGap:           time.Second,
		InventoryTimeout:          25 * time.Second,
		DefaultTimeout:            15 * time.Second,
		EmptyQueueDelay:           5 * time.Second,
		ProcessingDelay:           350 * time.Millisecond,
		ReactivationPeriod:        60 * time.Second,
		ListenHost:                "0.0.0.0",
		ListenPort:                8082,
		ConnectionsPath:           "data/connections.json",
		CooldownsPath:             "data/endpoint_cooldowns.json",
		QueuePath:                 "data/queue.json",
		HistoryDSN:                "data/history.db",
		HealthCheckInterval:       5 * time.Minute,
		HealthCheckTimeout:        10 * time.Second,
	}
}

var current atomic.Value

func init() {
	current.Store(defaultSettings())
}

// Load reads Settings from environment variables (spec.md §6), falling
// back to defaults for anything unset or malformed, and stores the result
// for Get to return.
func Load() Settings {
	s := defaultSettings()

	if seq := parseBackoffSequence(os.Getenv("BACKOFF_SEQUENCE_MINUTES")); len(seq) > 0 {
		s.BackoffSequenceMinutes = seq
	}

	s.CooldownConnectionResetMs = envInt64("COOLDOWN_CONNECTION_RESET_MS", s.CooldownConnectionResetMs)
	s.CooldownTimeoutMs = envInt64("COOLDOWN_TIMEOUT_MS", s.CooldownTimeoutMs)
	s.CooldownDNSFailureMs = envInt64("COOLDOWN_DNS_FAILURE_MS", s.CooldownDNSFailureMs)
	s.CooldownSOCKSErrorMs = envInt64("COOLDOWN_SOCKS_ERROR_MS", s.CooldownSOCKSErrorMs)
	s.CooldownPermanentMs = envInt64("COOLDOWN_PERMANENT_MS", s.CooldownPermanentMs)

	s.ListenHost = envString("LISTEN_HOST", s.ListenHost)
	s.ListenPort = envInt("LISTEN_PORT", s.ListenPort)

	s.UpstreamAPICredential = os.Getenv("UPSTREAM_API_CREDENTIAL")
	s.DownstreamAPICredential = os.Getenv("DOWNSTREAM_INGEST_CREDENTIAL")
	s.DownstreamIngestURL = envString("DOWNSTREAM_INGEST_URL", s.DownstreamIngestURL)

	s.ConnectionsPath = envString("CONNECTIONS_PATH", s.ConnectionsPath)
	s.CooldownsPath = envString("COOLDOWNS_PATH", s.CooldownsPath)
	s.QueuePath = envString("QUEUE_PATH", s.QueuePath)
	s.HistoryDSN = envString("HISTORY_DSN", s.HistoryDSN)

	current.Store(s)
	return s
}

// Get returns the currently loaded Settings.
func Get() Settings {
	return current.Load().(Settings)
}

func parseBackoffSequence(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	seq := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			log.Warn("config: ignoring malformed BACKOFF_SEQUENCE_MINUTES", "value", raw)
			return nil
		}
		seq = append(seq, n)
	}
	if len(seq) == 0 {
		return nil
	}
	return seq
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Warn("config: ignoring malformed integer env var", "key", key, "value", v)
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
		log.Warn("config: ignoring malformed integer env var", "key", key, "value", v)
	}
	return fallback
}
