package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"steamgate/internal/domain"
)

type fakeRegistry struct {
	direct  domain.Connection
	proxies []domain.Connection
	cursor  int
}

func (r *fakeRegistry) Direct() domain.Connection { return r.direct }

func (r *fakeRegistry) ProxiesFrom(startIndex int) []domain.Connection {
	var out []domain.Connection
	for _, c := range r.proxies {
		if c.Index >= startIndex {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeRegistry) NextProxyIndex() (int, bool) {
	if len(r.proxies) == 0 {
		return 0, false
	}
	idx := r.proxies[r.cursor%len(r.proxies)].Index
	r.cursor++
	return idx, true
}

func (r *fakeRegistry) All() []domain.Connection {
	out := append([]domain.Connection{r.direct}, r.proxies...)
	return out
}

type cooldownCall struct {
	connIndex int
	endpoint  domain.EndpointClass
	reason    domain.CooldownReason
}

type fakeCooldowns struct {
	unavailable map[int]bool
	marks       []cooldownCall
	resets      []int
}

func (c *fakeCooldowns) IsAvailable(connIndex int, endpoint domain.EndpointClass) bool {
	return !c.unavailable[connIndex]
}

func (c *fakeCooldowns) Mark(connIndex int, endpoint domain.EndpointClass, reason domain.CooldownReason, message string) (domain.CooldownRecord, error) {
	c.marks = append(c.marks, cooldownCall{connIndex, endpoint, reason})
	if c.unavailable == nil {
		c.unavailable = map[int]bool{}
	}
	c.unavailable[connIndex] = true
	return domain.CooldownRecord{}, nil
}

func (c *fakeCooldowns) ResetOnSuccess(connIndex int, endpoint domain.EndpointClass) error {
	c.resets = append(c.resets, connIndex)
	return nil
}

func (c *fakeCooldowns) AllInCooldownFor(endpoint domain.EndpointClass, connIndexes []int) bool {
	for _, idx := range connIndexes {
		if !c.unavailable[idx] {
			return false
		}
	}
	return true
}

func (c *fakeCooldowns) NextAvailableInFor(endpoint domain.EndpointClass, connIndexes []int) int64 {
	return 60_000
}

func newDispatcherUnderTest(serverURL string) (*Dispatcher, *fakeRegistry, *fakeCooldowns) {
	reg := &fakeRegistry{direct: domain.Connection{Index: 0, Kind: domain.ConnectionDirect}}
	cd := &fakeCooldowns{}
	d := New(reg, cd, time.Second, time.Second, 0)
	return d, reg, cd
}

func TestRequestSuccessResetsAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, _, cd := newDispatcherUnderTest(srv.URL)
	outcome := d.Request(srv.URL + "/GetAnimatedAvatar")

	if outcome.Kind != domain.OutcomeOK {
		t.Fatalf("kind = %v, want OK", outcome.Kind)
	}
	if string(outcome.Body) != `{"ok":true}` {
		t.Fatalf("body = %q", outcome.Body)
	}
	if len(cd.resets) != 1 || cd.resets[0] != 0 {
		t.Fatalf("expected reset on connection 0, got %v", cd.resets)
	}
}

func TestRequestInventoryForbiddenIsPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d, _, _ := newDispatcherUnderTest(srv.URL)
	outcome := d.Request(srv.URL + "/inventory/730/2")

	if outcome.Kind != domain.OutcomeOK || !outcome.IsPrivate {
		t.Fatalf("outcome = %#v, want OK+private", outcome)
	}
}

func TestRequestFriendsUnauthorizedIsPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d, _, _ := newDispatcherUnderTest(srv.URL)
	outcome := d.Request(srv.URL + "/GetFriendList")

	if outcome.Kind != domain.OutcomeOK || !outcome.IsPrivate {
		t.Fatalf("outcome = %#v, want OK+private", outcome)
	}
}

func TestRequestRateLimitedMarksAndDefersWhenNoOtherConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d, _, cd := newDispatcherUnderTest(srv.URL)
	outcome := d.Request(srv.URL + "/GetSteamLevel")

	if outcome.Kind != domain.OutcomeDeferred {
		t.Fatalf("kind = %v, want Deferred", outcome.Kind)
	}
	if len(cd.marks) != 1 || cd.marks[0].reason != domain.ReasonRateLimited {
		t.Fatalf("marks = %#v, want one 429 mark", cd.marks)
	}
}

func TestRequestUnexpectedStatusIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, _, _ := newDispatcherUnderTest(srv.URL)
	outcome := d.Request(srv.URL + "/GetProfileBackground")

	if outcome.Kind != domain.OutcomeFailed {
		t.Fatalf("kind = %v, want Failed", outcome.Kind)
	}
}
