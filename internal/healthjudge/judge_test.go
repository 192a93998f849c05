package healthjudge

import (
	"errors"
	"testing"
	"time"

	"steamgate/internal/domain"
)

type fakeRegistry struct {
	conns []domain.Connection
}

func (r fakeRegistry) All() []domain.Connection { return r.conns }

func TestProbeAllRecordsHealthyAndUnhealthy(t *testing.T) {
	reg := fakeRegistry{conns: []domain.Connection{
		{Index: 0, Kind: domain.ConnectionDirect},
		{Index: 1, Kind: domain.ConnectionSOCKS5, URL: "socks5://proxy.test:1080"},
	}}

	j := New(reg, time.Hour, time.Second)
	j.probe = func(c domain.Connection, _ time.Duration) error {
		if c.Index == 1 {
			return errors.New("dial failed")
		}
		return nil
	}

	j.probeAll()

	results := j.Snapshot()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Healthy {
		t.Fatalf("direct connection reported unhealthy")
	}
	if results[1].Healthy {
		t.Fatalf("proxy connection reported healthy despite dial error")
	}
	if results[1].Error == "" {
		t.Fatalf("expected error message recorded for failed probe")
	}
}
