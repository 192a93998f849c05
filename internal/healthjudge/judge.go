// Package healthjudge periodically probes every registered connection's
// liveness for observability, without ever influencing Dispatcher
// selection (spec.md §4.3 selects purely off cooldown state). Adapted from
// the teacher's judge-rotation probe loop in
// internal/jobs/checker/judges/judge_routine.go, repurposed from proxy
// scoring to a simple liveness snapshot exposed on GET /health/connections.
package healthjudge

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"steamgate/internal/dispatcher"
	"steamgate/internal/domain"
)

// probeURL is a lightweight target used only to test connectivity through
// each connection; it plays no role in check evaluation.
const probeURL = "https://api.upstream-provider.test/health"

// Registry is the subset of *registry.Registry the Judge depends on.
type Registry interface {
	All() []domain.Connection
}

// Result is one connection's most recent liveness probe outcome.
type Result struct {
	Index     int
	Kind      domain.ConnectionKind
	Healthy   bool
	CheckedAt int64
	Error     string
}

// Judge periodically probes every connection and holds the latest result
// set for read-only reporting.
type Judge struct {
	registry Registry
	interval time.Duration
	timeout  time.Duration

	probe func(domain.Connection, time.Duration) error

	mu      sync.Mutex
	results map[int]Result
	nowFunc func() int64
}

// New constructs a Judge probing every connection in Registry on interval,
// each probe bounded by timeout.
func New(reg Registry, interval, timeout time.Duration) *Judge {
	return &Judge{
		registry: reg,
		interval: interval,
		timeout:  timeout,
		probe:    defaultProbe,
		results:  make(map[int]Result),
		nowFunc:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Run drives the probe loop until ctx is cancelled.
func (j *Judge) Run(ctx context.Context) {
	j.probeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.interval):
			j.probeAll()
		}
	}
}

func (j *Judge) probeAll() {
	conns := j.registry.All()
	var wg sync.WaitGroup
	var inFlight atomic.Int32
	for _, conn := range conns {
		wg.Add(1)
		inFlight.Add(1)
		go func(c domain.Connection) {
			defer wg.Done()
			defer inFlight.Add(-1)
			j.probeOne(c)
		}(conn)
	}
	wg.Wait()
	log.Debug("healthjudge: probe round complete", "connections", len(conns))
}

func (j *Judge) probeOne(conn domain.Connection) {
	err := j.probe(conn, j.timeout)
	result := Result{
		Index:     conn.Index,
		Kind:      conn.Kind,
		Healthy:   err == nil,
		CheckedAt: j.nowFunc(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	j.mu.Lock()
	j.results[conn.Index] = result
	j.mu.Unlock()
}

// Snapshot returns every connection's latest probe result, ordered by
// connection index.
func (j *Judge) Snapshot() []Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Result, 0, len(j.results))
	for _, r := range j.results {
		out = append(out, r)
	}
	for i := 0; i < len(out); i++ {
		for k := i + 1; k < len(out); k++ {
			if out[k].Index < out[i].Index {
				out[i], out[k] = out[k], out[i]
			}
		}
	}
	return out
}

func defaultProbe(conn domain.Connection, timeout time.Duration) error {
	transport, err := dispatcher.BuildTransport(conn, timeout)
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: timeout}
	req, err := http.NewRequest(http.MethodGet, probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
