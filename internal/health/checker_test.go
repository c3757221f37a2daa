package health

import (
	"context"
	"errors"
	"testing"

	"github.com/tokligence/labgate/internal/adapter"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func providers(ps ...adapter.Provider) func() []adapter.Provider {
	return func() []adapter.Provider { return ps }
}

func TestCheckHealthy(t *testing.T) {
	c := New(Config{Ledger: fakePinger{}, Providers: providers(adapter.ProviderOpenAI, adapter.ProviderAnthropic)})
	st := c.Check(context.Background())
	if st.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s (%+v)", st.Status, st.Components)
	}
	if len(st.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(st.Components))
	}
	for _, comp := range st.Components {
		if comp.Name == "model_providers" && comp.Message != "Configured: openai, anthropic" {
			t.Fatalf("unexpected providers message %q", comp.Message)
		}
	}
}

func TestCheckNoProvidersIsDegraded(t *testing.T) {
	c := New(Config{Providers: providers()})
	st := c.Check(context.Background())
	if st.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", st.Status)
	}
}

func TestCheckLedgerDownIsUnhealthy(t *testing.T) {
	c := New(Config{Ledger: fakePinger{err: errors.New("connection refused")}, Providers: providers(adapter.ProviderOpenAI)})
	st := c.Check(context.Background())
	if st.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", st.Status)
	}
	if got := c.GetLastStatus().Status; got != StatusUnhealthy {
		t.Fatalf("last status should be cached, got %s", got)
	}
}

func TestGetLastStatusBeforeCheck(t *testing.T) {
	c := New(Config{})
	if got := c.GetLastStatus().Status; got != StatusHealthy {
		t.Fatalf("expected healthy before any check, got %s", got)
	}
	if st := c.Check(context.Background()); st.Status != StatusHealthy || len(st.Components) != 0 {
		t.Fatalf("expected empty healthy status, got %+v", st)
	}
}
