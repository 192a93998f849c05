package dispatcher

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"steamgate/internal/cooldown"
	"steamgate/internal/domain"
	"steamgate/internal/registry"
)

// Registry is the subset of *registry.Registry the Dispatcher depends on,
// narrowed for testability.
type Registry interface {
	Direct() domain.Connection
	ProxiesFrom(startIndex int) []domain.Connection
	NextProxyIndex() (int, bool)
	All() []domain.Connection
}

// Cooldowns is the subset of *cooldown.Store the Dispatcher depends on.
type Cooldowns interface {
	IsAvailable(connIndex int, endpoint domain.EndpointClass) bool
	Mark(connIndex int, endpoint domain.EndpointClass, reason domain.CooldownReason, message string) (domain.CooldownRecord, error)
	ResetOnSuccess(connIndex int, endpoint domain.EndpointClass) error
	AllInCooldownFor(endpoint domain.EndpointClass, connIndexes []int) bool
	NextAvailableInFor(endpoint domain.EndpointClass, connIndexes []int) int64
}

var _ Registry = (*registry.Registry)(nil)
var _ Cooldowns = (*cooldown.Store)(nil)

// Dispatcher is the single entry point for every outbound call to the
// upstream provider (spec.md §4.3).
type Dispatcher struct {
	registry  Registry
	cooldowns Cooldowns

	inventoryTimeout time.Duration
	defaultTimeout   time.Duration
	minInterCallGap  time.Duration

	paceMu   sync.Mutex
	lastCall time.Time
}

// New constructs a Dispatcher over the given Registry and Cooldown Store.
func New(reg Registry, store Cooldowns, inventoryTimeout, defaultTimeout, minInterCallGap time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:         reg,
		cooldowns:        store,
		inventoryTimeout: inventoryTimeout,
		defaultTimeout:   defaultTimeout,
		minInterCallGap:  minInterCallGap,
	}
}

// Request classifies url, selects a connection, and performs the call,
// retrying on the next available connection on a retryable failure and
// returning Deferred if the whole column is in cooldown (spec.md §4.3).
func (d *Dispatcher) Request(url string) domain.Outcome {
	endpoint := domain.ClassifyURL(url)
	return d.dispatch(url, endpoint, map[int]struct{}{})
}

// dispatch performs one selection+call attempt, recursing into the next
// connection on a retryable failure. tried bounds recursion to a single
// pass through every connection (spec.md §4.3 step 6: "Limit recursion to
// one pass through all connections").
func (d *Dispatcher) dispatch(url string, endpoint domain.EndpointClass, tried map[int]struct{}) domain.Outcome {
	conn, ok := d.selectConnection(endpoint, tried)
	if !ok {
		wait := d.cooldowns.NextAvailableInFor(endpoint, d.allConnectionIndexes())
		return domain.Deferred(endpoint, wait)
	}
	tried[conn.Index] = struct{}{}

	d.pace()

	timeout := d.defaultTimeout
	if endpoint == domain.EndpointInventory {
		timeout = d.inventoryTimeout
	}

	transport, err := BuildTransport(conn, timeout)
	if err != nil {
		return domain.Failed(domain.FailureUpstreamOther, err.Error())
	}
	defer transport.CloseIdleConnections()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return domain.Failed(domain.FailureUpstreamOther, err.Error())
	}
	applyBrowserHeaders(req, endpoint)

	client := &http.Client{Transport: transport, Timeout: timeout}
	resp, doErr := clientDo(client, req)
	if doErr != nil {
		return d.handleTransportError(url, endpoint, conn, doErr, tried)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return domain.Failed(domain.FailureUpstreamOther, readErr.Error())
	}

	return d.handleResponse(url, endpoint, conn, resp.StatusCode, body, tried)
}

func clientDo(client *http.Client, req *http.Request) (*http.Response, error) {
	return client.Do(req)
}

func (d *Dispatcher) handleResponse(url string, endpoint domain.EndpointClass, conn domain.Connection, status int, body []byte, tried map[int]struct{}) domain.Outcome {
	switch {
	case status >= 200 && status < 300:
		if err := d.cooldowns.ResetOnSuccess(conn.Index, endpoint); err != nil {
			log.Warn("dispatcher: reset_on_success failed", "error", err)
		}
		return domain.OK(body, false)

	case status == http.StatusTooManyRequests:
		if _, err := d.cooldowns.Mark(conn.Index, endpoint, domain.ReasonRateLimited, "429 rate limited"); err != nil {
			log.Error("dispatcher: mark 429 failed", "error", err)
		}
		return d.dispatch(url, endpoint, tried)

	case status == http.StatusForbidden && endpoint == domain.EndpointInventory:
		return domain.OK(body, true)

	case status == http.StatusUnauthorized && endpoint == domain.EndpointFriends:
		return domain.OK(body, true)

	default:
		return domain.Failed(domain.FailureUpstreamOther, fmt.Sprintf("unexpected status %d", status))
	}
}

func (d *Dispatcher) handleTransportError(url string, endpoint domain.EndpointClass, conn domain.Connection, err error, tried map[int]struct{}) domain.Outcome {
	reason, retryable := categorizeTransportError(err, !conn.IsDirect())
	if !retryable {
		return domain.Failed(domain.FailureUpstreamOther, err.Error())
	}

	if _, markErr := d.cooldowns.Mark(conn.Index, endpoint, reason, err.Error()); markErr != nil {
		log.Error("dispatcher: mark cooldown failed", "error", markErr)
	}
	return d.dispatch(url, endpoint, tried)
}

// selectConnection picks the best available connection for endpoint that
// has not already been tried this dispatch: direct first, then proxies in
// round-robin order starting from the current cursor.
func (d *Dispatcher) selectConnection(endpoint domain.EndpointClass, tried map[int]struct{}) (domain.Connection, bool) {
	direct := d.registry.Direct()
	if _, skip := tried[direct.Index]; !skip && d.cooldowns.IsAvailable(direct.Index, endpoint) {
		return direct, true
	}

	startIdx, hasProxies := d.registry.NextProxyIndex()
	if !hasProxies {
		return domain.Connection{}, false
	}

	// NextProxyIndex has advanced the shared cursor by one; walk the proxy
	// list starting from the index it returned, skipping connections
	// already tried in this dispatch. Each retry within one dispatch calls
	// selectConnection again and so advances the cursor again.
	for _, conn := range d.registry.ProxiesFrom(startIdx) {
		if _, skip := tried[conn.Index]; skip {
			continue
		}
		if d.cooldowns.IsAvailable(conn.Index, endpoint) {
			return conn, true
		}
	}

	return domain.Connection{}, false
}

func (d *Dispatcher) allConnectionIndexes() []int {
	all := d.registry.All()
	idx := make([]int, len(all))
	for i, c := range all {
		idx[i] = c.Index
	}
	return idx
}

// pace enforces the minimum inter-call gap across all dispatches,
// independent of connection (spec.md §4.3 step 2).
func (d *Dispatcher) pace() {
	d.paceMu.Lock()
	defer d.paceMu.Unlock()

	if d.minInterCallGap <= 0 {
		return
	}
	elapsed := time.Since(d.lastCall)
	if elapsed < d.minInterCallGap {
		time.Sleep(d.minInterCallGap - elapsed)
	}
	d.lastCall = time.Now()
}
