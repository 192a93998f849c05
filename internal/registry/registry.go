// Package registry implements the Connection Registry (spec.md §4.1): the
// ordered list of outbound connections — one direct egress plus zero or
// more authenticated SOCKS5 proxies — persisted to config_proxies.json,
// with round-robin selection over the proxy subset.
//
// Persistence follows the teacher's internal/config/settings.go pattern:
// an atomic.Value snapshot updated under a mutex, serialized to a temp file
// and renamed over the config file after every mutation.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"steamgate/internal/domain"
)

const socks5Scheme = "socks5://"

// fileConnection is the on-disk shape of one entry in config_proxies.json.
// Older files may carry extra fields; anything not read here is dropped on
// the next save (spec.md §4.1 "migrate any legacy fields by dropping
// them").
type fileConnection struct {
	Type string  `json:"type"`
	URL  *string `json:"url"`
}

type fileFormat struct {
	Connections []fileConnection `json:"connections"`
}

// Registry owns the ordered connection list and the proxy round-robin
// cursor.
type Registry struct {
	path string

	mu     sync.Mutex
	cursor atomic.Uint64

	snapshot atomic.Value // []domain.Connection

	onRenumber func(old, new []domain.Connection)
}

// OnRenumber registers a callback invoked, after the connection list is
// persisted, with the connection list as it was immediately before and
// immediately after an AddProxy/RemoveProxy mutation. Used to keep the
// Cooldown Store's index-keyed matrix in sync with registry edits
// (spec.md §9's cyclic-reference resolution).
func (r *Registry) OnRenumber(f func(old, new []domain.Connection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRenumber = f
}

// New constructs a Registry backed by path, without loading it — call
// Load explicitly, mirroring the teacher's ReadSettings/SetupDB split
// between construction and first load.
func New(path string) *Registry {
	r := &Registry{path: path}
	r.snapshot.Store([]domain.Connection{directConnection()})
	return r
}

func directConnection() domain.Connection {
	return domain.Connection{Index: 0, Kind: domain.ConnectionDirect}
}

// Load reads the config file, synthesizing the direct entry at index 0 if
// it is missing, and creates the file with just the direct connection if
// it does not exist yet.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("registry: config file not found, creating with direct-only default", "path", r.path)
			conns := []domain.Connection{directConnection()}
			r.snapshot.Store(conns)
			return r.persistLocked(conns)
		}
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}

	var parsed fileFormat
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.path, err)
	}

	conns := fromFile(parsed.Connections)
	r.snapshot.Store(conns)
	return nil
}

func fromFile(entries []fileConnection) []domain.Connection {
	conns := make([]domain.Connection, 0, len(entries)+1)
	haveDirect := false

	for _, e := range entries {
		kind := domain.ConnectionKind(e.Type)
		if kind != domain.ConnectionDirect && kind != domain.ConnectionSOCKS5 {
			continue
		}
		url := ""
		if e.URL != nil {
			url = *e.URL
		}
		if kind == domain.ConnectionDirect {
			if haveDirect {
				continue
			}
			haveDirect = true
			conns = append([]domain.Connection{{Index: 0, Kind: domain.ConnectionDirect}}, conns...)
			continue
		}
		conns = append(conns, domain.Connection{Kind: domain.ConnectionSOCKS5, URL: url})
	}

	if !haveDirect {
		conns = append([]domain.Connection{directConnection()}, conns...)
	}

	return reindex(conns)
}

func reindex(conns []domain.Connection) []domain.Connection {
	out := make([]domain.Connection, len(conns))
	for i, c := range conns {
		c.Index = i
		out[i] = c
	}
	return out
}

// All returns the current connection list, direct first.
func (r *Registry) All() []domain.Connection {
	return r.snapshot.Load().([]domain.Connection)
}

// Direct returns the fixed direct connection (always index 0).
func (r *Registry) Direct() domain.Connection {
	return r.All()[0]
}

// Proxies returns the non-direct connections, in registration order.
func (r *Registry) Proxies() []domain.Connection {
	all := r.All()
	if len(all) <= 1 {
		return nil
	}
	return all[1:]
}

// AddProxy validates and appends a SOCKS5 proxy connection, rejecting
// non-SOCKS5 schemes and duplicate URLs (spec.md §4.1).
func (r *Registry) AddProxy(url string) (domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.HasPrefix(url, socks5Scheme) {
		return domain.Connection{}, fmt.Errorf("registry: proxy url must use the %s scheme", socks5Scheme)
	}

	before := append([]domain.Connection(nil), r.All()...)
	for _, c := range before {
		if c.Kind == domain.ConnectionSOCKS5 && c.URL == url {
			return domain.Connection{}, fmt.Errorf("registry: proxy %s already registered", url)
		}
	}

	conns := append([]domain.Connection(nil), before...)
	added := domain.Connection{Kind: domain.ConnectionSOCKS5, URL: url}
	conns = append(conns, added)
	conns = reindex(conns)
	added = conns[len(conns)-1]

	r.snapshot.Store(conns)
	if err := r.persistLocked(conns); err != nil {
		return domain.Connection{}, err
	}
	r.notifyRenumber(before, conns)
	return added, nil
}

// RemoveProxy removes the proxy matching url, compacts indices, persists,
// and clamps the round-robin cursor so it never points past the end of
// the (now shorter) proxy list.
func (r *Registry) RemoveProxy(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.All()
	out := make([]domain.Connection, 0, len(before))
	found := false
	for _, c := range before {
		if c.Kind == domain.ConnectionSOCKS5 && c.URL == url {
			found = true
			continue
		}
		out = append(out, c)
	}
	if !found {
		return fmt.Errorf("registry: proxy %s not found", url)
	}

	out = reindex(out)
	r.snapshot.Store(out)

	if proxyCount := len(out) - 1; proxyCount > 0 {
		r.cursor.Store(r.cursor.Load() % uint64(proxyCount))
	} else {
		r.cursor.Store(0)
	}

	if err := r.persistLocked(out); err != nil {
		return err
	}
	r.notifyRenumber(before, out)
	return nil
}

// notifyRenumber invokes the registered renumber callback, if any. It is
// called from AddProxy/RemoveProxy while r.mu is still held, so a callback
// that calls a Registry method taking r.mu (AddProxy, RemoveProxy,
// OnRenumber, Load) deadlocks; All, Direct and Proxies do not take r.mu.
func (r *Registry) notifyRenumber(before, after []domain.Connection) {
	cb := r.onRenumber
	if cb == nil {
		return
	}
	cb(before, after)
}

// NextProxyIndex returns the connection index of the next proxy to try in
// round-robin order, starting from the current cursor, and advances the
// cursor. Returns (0, false) if there are no proxies.
func (r *Registry) NextProxyIndex() (int, bool) {
	proxies := r.Proxies()
	if len(proxies) == 0 {
		return 0, false
	}
	pos := r.cursor.Add(1) - 1
	chosen := proxies[int(pos%uint64(len(proxies)))]
	return chosen.Index, true
}

// ProxiesFrom returns the proxy connections starting at the given
// connection index and wrapping around, used by the Dispatcher to try
// every available proxy exactly once per dispatch attempt.
func (r *Registry) ProxiesFrom(startIndex int) []domain.Connection {
	proxies := r.Proxies()
	if len(proxies) == 0 {
		return nil
	}
	startPos := 0
	for i, c := range proxies {
		if c.Index == startIndex {
			startPos = i
			break
		}
	}
	ordered := make([]domain.Connection, 0, len(proxies))
	for i := 0; i < len(proxies); i++ {
		ordered = append(ordered, proxies[(startPos+i)%len(proxies)])
	}
	return ordered
}

func (r *Registry) persistLocked(conns []domain.Connection) error {
	entries := make([]fileConnection, 0, len(conns))
	for _, c := range conns {
		fc := fileConnection{Type: string(c.Kind)}
		if c.URL != "" {
			url := c.URL
			fc.URL = &url
		}
		entries = append(entries, fc)
	}

	data, err := json.MarshalIndent(fileFormat{Connections: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal %s: %w", r.path, err)
	}
	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("registry: rename %s over %s: %w", tmpPath, r.path, err)
	}
	return nil
}
