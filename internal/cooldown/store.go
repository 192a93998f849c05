// Package cooldown implements the Cooldown Store (spec.md §4.2): a
// persisted matrix of (connection_index, endpoint_class) -> CooldownRecord,
// plus the in-memory BackoffLevel map that survives cooldown expiry.
//
// Persistence follows the same file-snapshot-under-mutex discipline as
// internal/registry, grounded on the teacher's internal/config/settings.go
// atomic.Value + os.WriteFile pattern.
package cooldown

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"steamgate/internal/domain"
)

type cellKey struct {
	connIndex int
	endpoint  domain.EndpointClass
}

// Store owns the cooldown matrix, the in-memory backoff-level map, and the
// backoff sequence / fixed cooldown durations it was configured with.
type Store struct {
	path string

	backoffSequenceMinutes []int
	fixedDurationsMs       map[domain.CooldownReason]int64

	mu      sync.Mutex
	records map[cellKey]domain.CooldownRecord
	backoff map[cellKey]int
	nowFunc func() int64
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithNowFunc overrides the store's clock, for deterministic tests.
func WithNowFunc(f func() int64) Option {
	return func(s *Store) { s.nowFunc = f }
}

// New constructs a Store. backoffSequenceMinutes must be non-empty and
// strictly positive per spec.md §4.2; fixedDurationsMs supplies the
// per-category duration for every non-429 reason.
func New(path string, backoffSequenceMinutes []int, fixedDurationsMs map[domain.CooldownReason]int64, opts ...Option) *Store {
	s := &Store{
		path:                   path,
		backoffSequenceMinutes: append([]int(nil), backoffSequenceMinutes...),
		fixedDurationsMs:       fixedDurationsMs,
		records:                make(map[cellKey]domain.CooldownRecord),
		backoff:                make(map[cellKey]int),
		nowFunc:                defaultNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultNow() int64 { return nowMs() }

// fileRecord is the on-disk shape nested under each connection entry in
// endpoint_cooldowns.json (spec.md §6). DurationMinutes is accepted on
// read for backwards readability (spec.md §9 open question) but always
// written as DurationMs going forward.
type fileRecord struct {
	CooldownUntil   int64  `json:"cooldown_until"`
	Reason          string `json:"reason"`
	BackoffLevel    *int   `json:"backoff_level,omitempty"`
	AppliedAt       int64  `json:"applied_at"`
	ErrorMessage    string `json:"error_message"`
	DurationMs      *int64 `json:"duration_ms,omitempty"`
	DurationMinutes *int64 `json:"duration_minutes,omitempty"`
}

type fileConnectionEntry struct {
	Index             int                   `json:"index"`
	Type              string                `json:"type"`
	URL               string                `json:"url,omitempty"`
	EndpointCooldowns map[string]fileRecord `json:"endpoint_cooldowns"`
}

type fileFormat struct {
	Connections []fileConnectionEntry `json:"connections"`
}

// Load reads the persisted cooldown file, if present, seeding both the
// record matrix and the BackoffLevel map from any 429 records found
// (spec.md §3 BackoffLevel: "seeded from any 429 records present in the
// persisted store").
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cooldown: read %s: %w", s.path, err)
	}

	var parsed fileFormat
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("cooldown: parse %s: %w", s.path, err)
	}

	records := make(map[cellKey]domain.CooldownRecord)
	backoff := make(map[cellKey]int)

	for _, conn := range parsed.Connections {
		for endpointStr, fr := range conn.EndpointCooldowns {
			key := cellKey{connIndex: conn.Index, endpoint: domain.EndpointClass(endpointStr)}
			rec := domain.CooldownRecord{
				UntilMs:      fr.CooldownUntil,
				Reason:       domain.CooldownReason(fr.Reason),
				AppliedAtMs:  fr.AppliedAt,
				ErrorMessage: fr.ErrorMessage,
				BackoffLevel: fr.BackoffLevel,
				DurationMs:   resolveDuration(fr),
			}
			records[key] = rec
			if rec.Reason == domain.ReasonRateLimited && rec.BackoffLevel != nil {
				backoff[key] = *rec.BackoffLevel
			}
		}
	}

	s.records = records
	s.backoff = backoff
	return nil
}

func resolveDuration(fr fileRecord) int64 {
	if fr.DurationMs != nil {
		return *fr.DurationMs
	}
	if fr.DurationMinutes != nil {
		return *fr.DurationMinutes * 60_000
	}
	return 0
}

// IsAvailable reports whether cell (c, e) has no record, or its record has
// expired.
func (s *Store) IsAvailable(connIndex int, endpoint domain.EndpointClass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAvailableLocked(connIndex, endpoint)
}

func (s *Store) isAvailableLocked(connIndex int, endpoint domain.EndpointClass) bool {
	rec, ok := s.records[cellKey{connIndex: connIndex, endpoint: endpoint}]
	if !ok {
		return true
	}
	return rec.Expired(s.nowFunc())
}

// CleanupExpired removes every expired record from the persisted matrix.
// Per spec.md §4.2, 429 backoff levels are retained in memory even after
// the record they were computed from expires and is removed here.
func (s *Store) CleanupExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persistLocked()
}

// Mark records a failure against cell (c, e). For reason==429 this
// advances the backoff level (the first 429 on a cell with no recorded
// level uses level 0, i.e. sequence[0]) and computes the cooldown duration
// from the backoff sequence, saturating at the sequence's final element.
// For any other reason it applies the fixed configured duration for that
// category.
func (s *Store) Mark(connIndex int, endpoint domain.EndpointClass, reason domain.CooldownReason, message string) (domain.CooldownRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	key := cellKey{connIndex: connIndex, endpoint: endpoint}

	var rec domain.CooldownRecord
	if reason == domain.ReasonRateLimited {
		newLevel := 0
		if level, ok := s.backoff[key]; ok {
			newLevel = level + 1
		}
		if maxLevel := len(s.backoffSequenceMinutes) - 1; newLevel > maxLevel {
			newLevel = maxLevel
		}
		s.backoff[key] = newLevel
		durationMs := int64(s.backoffSequenceMinutes[newLevel]) * 60_000
		lvl := newLevel
		rec = domain.CooldownRecord{
			UntilMs:      now + durationMs,
			Reason:       domain.ReasonRateLimited,
			AppliedAtMs:  now,
			ErrorMessage: message,
			BackoffLevel: &lvl,
			DurationMs:   durationMs,
		}
	} else {
		durationMs := s.fixedDurationsMs[reason]
		if durationMs <= 0 {
			durationMs = 1
		}
		rec = domain.CooldownRecord{
			UntilMs:      now + durationMs,
			Reason:       reason,
			AppliedAtMs:  now,
			ErrorMessage: message,
			DurationMs:   durationMs,
		}
	}

	s.records[key] = rec
	if err := s.persistLocked(); err != nil {
		return rec, err
	}
	log.Debug("cooldown: cell marked", "connection", connIndex, "endpoint", endpoint, "reason", reason, "until_ms", rec.UntilMs)
	return rec, nil
}

// ResetOnSuccess deletes any 429 BackoffLevel entry and 429 record for the
// cell. Non-429 records are left untouched — they reflect external
// conditions and expire naturally (spec.md §4.2).
func (s *Store) ResetOnSuccess(connIndex int, endpoint domain.EndpointClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cellKey{connIndex: connIndex, endpoint: endpoint}
	delete(s.backoff, key)

	rec, ok := s.records[key]
	if !ok || rec.Reason != domain.ReasonRateLimited {
		return nil
	}
	delete(s.records, key)
	return s.persistLocked()
}

// Resync remaps the cooldown matrix's connection indices after a
// Connection Registry mutation (add/remove proxy), per spec.md §9: the
// Cooldown Store holds indices only, so a registry edit that renumbers
// connections must re-home every existing cell onto its new index rather
// than silently losing or misattributing cooldown state. For each old
// cell, the best-matching entry in the new connection list is found by
// trying, in order: (index, type, url) identity, then (type, url)
// identity (covers an index shift from a removal earlier in the list),
// then type==direct (the direct connection is unique and never removed).
// A cell with no match (a removed proxy's own cooldowns) is dropped.
func (s *Store) Resync(oldConns, newConns []domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remap := make(map[int]int, len(oldConns))
	for _, old := range oldConns {
		if newIdx, ok := matchConnection(old, newConns); ok {
			remap[old.Index] = newIdx
		}
	}

	records := make(map[cellKey]domain.CooldownRecord, len(s.records))
	backoff := make(map[cellKey]int, len(s.backoff))
	for key, rec := range s.records {
		newIdx, ok := remap[key.connIndex]
		if !ok {
			continue
		}
		records[cellKey{connIndex: newIdx, endpoint: key.endpoint}] = rec
	}
	for key, lvl := range s.backoff {
		newIdx, ok := remap[key.connIndex]
		if !ok {
			continue
		}
		backoff[cellKey{connIndex: newIdx, endpoint: key.endpoint}] = lvl
	}

	s.records = records
	s.backoff = backoff
	return s.persistLocked()
}

func matchConnection(old domain.Connection, candidates []domain.Connection) (int, bool) {
	for _, c := range candidates {
		if c.Index == old.Index && c.Kind == old.Kind && c.URL == old.URL {
			return c.Index, true
		}
	}
	for _, c := range candidates {
		if c.Kind == old.Kind && c.URL == old.URL {
			return c.Index, true
		}
	}
	if old.IsDirect() {
		for _, c := range candidates {
			if c.IsDirect() {
				return c.Index, true
			}
		}
	}
	return 0, false
}

// AllInCooldownFor reports whether every connection is currently
// unavailable for the given endpoint class, scanning the connection
// indexes passed in by the caller (the Dispatcher's registry snapshot).
func (s *Store) AllInCooldownFor(endpoint domain.EndpointClass, connIndexes []int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range connIndexes {
		if s.isAvailableLocked(idx, endpoint) {
			return false
		}
	}
	return true
}

// NextAvailableInFor returns the minimum remaining cooldown time across the
// given connections for endpoint, or zero if any of them is available now.
func (s *Store) NextAvailableInFor(endpoint domain.EndpointClass, connIndexes []int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	var min int64 = -1
	for _, idx := range connIndexes {
		rec, ok := s.records[cellKey{connIndex: idx, endpoint: endpoint}]
		if !ok || rec.Expired(now) {
			return 0
		}
		remaining := rec.RemainingMs(now)
		if min == -1 || remaining < min {
			min = remaining
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

// BackoffLevelFor returns the current in-memory backoff level for the
// cell, defaulting to 0 if none has been recorded.
func (s *Store) BackoffLevelFor(connIndex int, endpoint domain.EndpointClass) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff[cellKey{connIndex: connIndex, endpoint: endpoint}]
}

// RecordFor returns the current record for a cell, if any.
func (s *Store) RecordFor(connIndex int, endpoint domain.EndpointClass) (domain.CooldownRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[cellKey{connIndex: connIndex, endpoint: endpoint}]
	return rec, ok
}

// Snapshot returns every currently-recorded cell, for the /health/cooldowns
// reporting surface and for connection-registry resync.
func (s *Store) Snapshot() map[int]map[domain.EndpointClass]domain.CooldownRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]map[domain.EndpointClass]domain.CooldownRecord)
	for key, rec := range s.records {
		if out[key.connIndex] == nil {
			out[key.connIndex] = make(map[domain.EndpointClass]domain.CooldownRecord)
		}
		out[key.connIndex][key.endpoint] = rec
	}
	return out
}

func (s *Store) persistLocked() error {
	byConn := make(map[int]map[string]fileRecord)
	for key, rec := range s.records {
		if byConn[key.connIndex] == nil {
			byConn[key.connIndex] = make(map[string]fileRecord)
		}
		durationMs := rec.DurationMs
		byConn[key.connIndex][string(key.endpoint)] = fileRecord{
			CooldownUntil: rec.UntilMs,
			Reason:        string(rec.Reason),
			BackoffLevel:  rec.BackoffLevel,
			AppliedAt:     rec.AppliedAtMs,
			ErrorMessage:  rec.ErrorMessage,
			DurationMs:    &durationMs,
		}
	}

	entries := make([]fileConnectionEntry, 0, len(byConn))
	for idx, cooldowns := range byConn {
		entries = append(entries, fileConnectionEntry{
			Index:             idx,
			EndpointCooldowns: cooldowns,
		})
	}

	data, err := json.MarshalIndent(fileFormat{Connections: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("cooldown: marshal %s: %w", s.path, err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("cooldown: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cooldown: rename %s over %s: %w", tmpPath, s.path, err)
	}
	return nil
}
