package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"steamgate/internal/domain"
	"steamgate/internal/healthjudge"
	"steamgate/internal/queue"
)

type fakeQueue struct {
	profiles []domain.Profile
	stats    queue.Stats
	added    map[string]bool
}

func (q *fakeQueue) Add(steamID, username string, enqueuedAtMs int64) (queue.AddResult, error) {
	if q.added == nil {
		q.added = make(map[string]bool)
	}
	if q.added[steamID] {
		return queue.AlreadyPresent, nil
	}
	q.added[steamID] = true
	q.profiles = append(q.profiles, domain.NewProfile(steamID, username, enqueuedAtMs))
	return queue.Added, nil
}

func (q *fakeQueue) All() ([]domain.Profile, error) { return q.profiles, nil }
func (q *fakeQueue) Stats() (queue.Stats, error)    { return q.stats, nil }

type fakeCooldowns struct {
	snapshot map[int]map[domain.EndpointClass]domain.CooldownRecord
}

func (c *fakeCooldowns) Snapshot() map[int]map[domain.EndpointClass]domain.CooldownRecord {
	return c.snapshot
}

type fakeRegistry struct {
	conns []domain.Connection
}

func (r *fakeRegistry) All() []domain.Connection { return r.conns }

type fakeHealthJudge struct {
	results []healthjudge.Result
}

func (j *fakeHealthJudge) Snapshot() []healthjudge.Result { return j.results }

func newTestServer() (*Server, *fakeQueue, *fakeCooldowns, *fakeRegistry, *fakeHealthJudge) {
	q := &fakeQueue{}
	c := &fakeCooldowns{snapshot: map[int]map[domain.EndpointClass]domain.CooldownRecord{}}
	reg := &fakeRegistry{conns: []domain.Connection{{Index: 0, Kind: domain.ConnectionDirect}}}
	j := &fakeHealthJudge{}
	return New(q, c, reg, j), q, c, reg, j
}

func TestHandleSubmitProfilesSingleObject(t *testing.T) {
	s, q, _, _, _ := newTestServer()
	body := bytes.NewBufferString(`{"steam_id":"123","username":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/profiles", body)
	rec := httptest.NewRecorder()

	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.profiles) != 1 {
		t.Fatalf("profiles added = %d, want 1", len(q.profiles))
	}
}

func TestHandleSubmitProfilesArrayAndIdempotency(t *testing.T) {
	s, q, _, _, _ := newTestServer()
	body := bytes.NewBufferString(`[{"steam_id":"1","username":"a"},{"steam_id":"1","username":"a"}]`)
	req := httptest.NewRequest(http.MethodPost, "/profiles", body)
	rec := httptest.NewRecorder()

	s.Routes().ServeHTTP(rec, req)

	var results []struct {
		Success bool `json:"success"`
		Added   bool `json:"added"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Added || results[1].Added {
		t.Fatalf("expected first add=true, second add=false, got %#v", results)
	}
	if len(q.profiles) != 1 {
		t.Fatalf("profiles = %d, want 1 (deduped)", len(q.profiles))
	}
}

func TestHandleQueueReportsStats(t *testing.T) {
	s, q, _, _, _ := newTestServer()
	q.profiles = []domain.Profile{domain.NewProfile("1", "a", 0)}
	q.stats = queue.Stats{Total: 1}

	req := httptest.NewRequest(http.MethodGet, "/profiles/queue", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"total":1`)) {
		t.Fatalf("response missing stats total: %s", rec.Body.String())
	}
}

func TestHandleCooldownsReportsDegradedOnLongCooldown(t *testing.T) {
	s, _, c, _, _ := newTestServer()
	s.nowFunc = func() int64 { return 1_000_000 }
	c.snapshot = map[int]map[domain.EndpointClass]domain.CooldownRecord{
		0: {
			domain.EndpointSteamLevel: {
				UntilMs: 1_000_000 + longCooldownThresholdMs + 1,
				Reason:  domain.ReasonRateLimited,
			},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/health/cooldowns", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	var resp struct {
		OverallStatus string `json:"overall_status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OverallStatus != "degraded" {
		t.Fatalf("overall_status = %q, want degraded", resp.OverallStatus)
	}
}

func TestHandleConnectionsReportsJudgeSnapshot(t *testing.T) {
	s, _, _, _, j := newTestServer()
	j.results = []healthjudge.Result{{Index: 0, Kind: domain.ConnectionDirect, Healthy: true, CheckedAt: 42}}

	req := httptest.NewRequest(http.MethodGet, "/health/connections", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if !bytes.Contains(rec.Body.Bytes(), []byte(`"healthy":true`)) {
		t.Fatalf("response missing healthy connection: %s", rec.Body.String())
	}
}
