package scheduler

import (
	"context"
	"testing"
	"time"

	"steamgate/internal/domain"
	"steamgate/internal/ingest"
)

type fakeQueue struct {
	profiles map[string]domain.Profile
	order    []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{profiles: make(map[string]domain.Profile)}
}

func (q *fakeQueue) add(p domain.Profile) {
	q.profiles[p.SteamID] = p
	q.order = append(q.order, p.SteamID)
}

func (q *fakeQueue) NextProcessable() (domain.Profile, bool, error) {
	for _, id := range q.order {
		p, ok := q.profiles[id]
		if ok && p.AnyToCheck() {
			return p, true, nil
		}
	}
	for _, id := range q.order {
		p, ok := q.profiles[id]
		if ok && p.AllTerminal() {
			return p, true, nil
		}
	}
	return domain.Profile{}, false, nil
}

func (q *fakeQueue) ByID(steamID string) (domain.Profile, bool, error) {
	p, ok := q.profiles[steamID]
	return p, ok, nil
}

func (q *fakeQueue) UpdateCheck(steamID string, check domain.CheckName, status domain.CheckStatus) (bool, error) {
	p, ok := q.profiles[steamID]
	if !ok {
		return false, nil
	}
	p.Checks[check] = status
	q.profiles[steamID] = p
	return true, nil
}

func (q *fakeQueue) SetPrivate(steamID string, private bool) error {
	p, ok := q.profiles[steamID]
	if !ok {
		return nil
	}
	p.Private = private
	q.profiles[steamID] = p
	return nil
}

func (q *fakeQueue) Remove(steamID string) error {
	delete(q.profiles, steamID)
	return nil
}

func (q *fakeQueue) All() ([]domain.Profile, error) {
	out := make([]domain.Profile, 0, len(q.order))
	for _, id := range q.order {
		if p, ok := q.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeCooldowns struct{}

func (fakeCooldowns) CleanupExpired() (int, error)               { return 0, nil }
func (fakeCooldowns) IsAvailable(int, domain.EndpointClass) bool { return true }

type fakeRegistry struct{}

func (fakeRegistry) All() []domain.Connection {
	return []domain.Connection{{Index: 0, Kind: domain.ConnectionDirect}}
}

type fakeDispatcher struct {
	outcome domain.Outcome
}

func (f fakeDispatcher) Request(string) domain.Outcome { return f.outcome }

type fakeValidator struct {
	check domain.CheckName
}

func (fakeValidator) Run(check domain.CheckName, outcome domain.Outcome) domain.Verdict {
	if outcome.Kind == domain.OutcomeFailed {
		return domain.VerdictTransportErr(domain.CheckEndpoints[check], outcome.Message)
	}
	return domain.VerdictOK(true, nil)
}

type fakeIngest struct {
	outcome ingest.Outcome
}

func (f fakeIngest) Submit(domain.Profile) (ingest.Outcome, error) { return f.outcome, nil }

func noopURLBuilder(domain.CheckName, string) string { return "https://example.test/check" }

func TestTickRunsAllChecksToPassed(t *testing.T) {
	q := newFakeQueue()
	q.add(domain.NewProfile("1", "alice", 0))

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{outcome: domain.OK([]byte(`{}`), false)}, fakeValidator{}, fakeIngest{}, noopURLBuilder, 0, 0, time.Hour)

	for i := 0; i < len(domain.CheckOrder)+1; i++ {
		s.tick(context.Background())
	}

	profile, ok, _ := q.ByID("1")
	if !ok {
		t.Fatalf("profile removed unexpectedly")
	}
	if !profile.AllPassed() {
		t.Fatalf("profile checks = %+v, want all passed", profile.Checks)
	}
}

func TestTickSubmitsAllPassedProfile(t *testing.T) {
	q := newFakeQueue()
	p := domain.NewProfile("1", "alice", 0)
	for _, c := range domain.CheckOrder {
		p.Checks[c] = domain.StatusPassed
	}
	q.add(p)

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{}, fakeValidator{}, fakeIngest{outcome: ingest.Accepted}, noopURLBuilder, 0, 0, time.Hour)
	s.tick(context.Background())

	if _, ok, _ := q.ByID("1"); ok {
		t.Fatalf("profile still queued after accepted submission")
	}
}

func TestTickLeavesProfileOnRetryableSubmission(t *testing.T) {
	q := newFakeQueue()
	p := domain.NewProfile("1", "alice", 0)
	for _, c := range domain.CheckOrder {
		p.Checks[c] = domain.StatusPassed
	}
	q.add(p)

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{}, fakeValidator{}, fakeIngest{outcome: ingest.Retryable}, noopURLBuilder, 0, 0, time.Hour)
	s.tick(context.Background())

	if _, ok, _ := q.ByID("1"); !ok {
		t.Fatalf("profile removed despite retryable submission outcome")
	}
}

func TestPrivateProfileShortCircuitsFriendsAndInventory(t *testing.T) {
	q := newFakeQueue()
	p := domain.NewProfile("1", "alice", 0)
	p.Private = true
	for _, c := range domain.CheckOrder {
		if c != domain.CheckFriends && c != domain.CheckCSGOInventory {
			p.Checks[c] = domain.StatusPassed
		}
	}
	q.add(p)

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{outcome: domain.OK([]byte(`{}`), false)}, fakeValidator{}, fakeIngest{}, noopURLBuilder, 0, 0, time.Hour)
	s.tick(context.Background())

	profile, _, _ := q.ByID("1")
	if profile.Checks[domain.CheckFriends] != domain.StatusPassed {
		t.Fatalf("friends = %v, want passed via private short-circuit", profile.Checks[domain.CheckFriends])
	}
	if profile.Checks[domain.CheckCSGOInventory] != domain.StatusPassed {
		t.Fatalf("csgo_inventory = %v, want passed via private short-circuit", profile.Checks[domain.CheckCSGOInventory])
	}
}

type fakeHistory struct {
	events []string
}

func (h *fakeHistory) Record(steamID, check, kind string, passed bool, details map[string]any) {
	h.events = append(h.events, kind)
}

func TestSetHistoryRecordsAcceptedProfileEvent(t *testing.T) {
	q := newFakeQueue()
	p := domain.NewProfile("1", "alice", 0)
	for _, c := range domain.CheckOrder {
		p.Checks[c] = domain.StatusPassed
	}
	q.add(p)

	hist := &fakeHistory{}
	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{}, fakeValidator{}, fakeIngest{outcome: ingest.Accepted}, noopURLBuilder, 0, 0, time.Hour)
	s.SetHistory(hist)
	s.tick(context.Background())

	if len(hist.events) != 1 || hist.events[0] != "accepted" {
		t.Fatalf("history events = %v, want [accepted]", hist.events)
	}
}

func TestNoHistoryAttachedIsANoop(t *testing.T) {
	q := newFakeQueue()
	q.add(domain.NewProfile("1", "alice", 0))

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{outcome: domain.OK([]byte(`{}`), false)}, fakeValidator{}, fakeIngest{}, noopURLBuilder, 0, 0, time.Hour)
	s.tick(context.Background())
}

func TestTransportErrorDefersCheck(t *testing.T) {
	q := newFakeQueue()
	q.add(domain.NewProfile("1", "alice", 0))

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{outcome: domain.Failed(domain.FailureUpstreamOther, "boom")}, fakeValidator{}, fakeIngest{}, noopURLBuilder, 0, 0, time.Hour)
	s.tick(context.Background())

	profile, ok, _ := q.ByID("1")
	if !ok {
		t.Fatalf("profile removed on transport error, want deferred")
	}
	if profile.Checks[domain.CheckAnimatedAvatar] != domain.StatusDeferred {
		t.Fatalf("animated_avatar = %v, want deferred", profile.Checks[domain.CheckAnimatedAvatar])
	}
	if s.deferred.Len() == 0 {
		t.Fatalf("deferred set empty after transport error")
	}
}

func TestRunRestoresDeferredSetFromQueueOnStartup(t *testing.T) {
	q := newFakeQueue()
	p := domain.NewProfile("1", "alice", 0)
	p.Checks[domain.CheckFriends] = domain.StatusDeferred
	q.add(p)

	s := New(q, fakeCooldowns{}, fakeRegistry{}, fakeDispatcher{outcome: domain.OK([]byte(`{}`), false)}, fakeValidator{}, fakeIngest{}, noopURLBuilder, 0, 0, time.Hour)

	if s.deferred.Len() != 0 {
		t.Fatalf("deferred set should start empty before restore")
	}
	s.restoreDeferredSet()

	if s.deferred.Len() != 1 {
		t.Fatalf("deferred set len = %d, want 1 restored from the queue's deferred check", s.deferred.Len())
	}
}

type countingDispatcher struct {
	outcome domain.Outcome
	calls   int
}

func (d *countingDispatcher) Request(string) domain.Outcome {
	d.calls++
	return d.outcome
}

// privateDiscoveryValidator reports steam_level as private and every other
// check as a plain pass, so tests can exercise the steam_level-discovers-
// private-within-this-pass path rather than a pre-seeded profile.Private.
type privateDiscoveryValidator struct{}

func (privateDiscoveryValidator) Run(check domain.CheckName, outcome domain.Outcome) domain.Verdict {
	if check == domain.CheckSteamLevel {
		return domain.VerdictPrivate(nil)
	}
	return domain.VerdictOK(true, nil)
}

func TestPrivateDiscoveredMidPassShortCircuitsSameTick(t *testing.T) {
	q := newFakeQueue()
	q.add(domain.NewProfile("1", "alice", 0))

	disp := &countingDispatcher{outcome: domain.OK([]byte(`{}`), false)}
	s := New(q, fakeCooldowns{}, fakeRegistry{}, disp, privateDiscoveryValidator{}, fakeIngest{}, noopURLBuilder, 0, 0, time.Hour)
	s.tick(context.Background())

	profile, ok, _ := q.ByID("1")
	if !ok {
		t.Fatalf("profile removed unexpectedly")
	}
	if profile.Checks[domain.CheckFriends] != domain.StatusPassed {
		t.Fatalf("friends = %v, want passed via same-tick private short-circuit", profile.Checks[domain.CheckFriends])
	}
	if profile.Checks[domain.CheckCSGOInventory] != domain.StatusPassed {
		t.Fatalf("csgo_inventory = %v, want passed via same-tick private short-circuit", profile.Checks[domain.CheckCSGOInventory])
	}

	wantCalls := len(domain.CheckOrder) - 2 // every check but friends/csgo_inventory dispatches
	if disp.calls != wantCalls {
		t.Fatalf("dispatcher calls = %d, want %d: friends/csgo_inventory must not hit the network once steam_level discovers private", disp.calls, wantCalls)
	}
}
