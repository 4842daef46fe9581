package routing_test

import (
	"testing"
	"time"

	mocks "helios-hq/relay/internal/routing"
	"helios-hq/relay/pkg/health"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/routing"
	"helios-hq/relay/pkg/routing/strategies"
)

func newSnapshot(provs ...providers.Provider) *providers.Snapshot {
	m := make(map[string]providers.Provider, len(provs))
	for _, p := range provs {
		m[p.Name()] = p
	}
	return providers.NewSnapshot(m, providers.NewAliasTable(map[string]string{
		"gpt-4-latest": "gpt-4",
	}))
}

func newEngine(t *testing.T, cfg routing.Config) *routing.Engine {
	t.Helper()
	e, err := routing.NewEngine(cfg, strategies.Registry())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestEngine_ModelNotFound(t *testing.T) {
	snap := newSnapshot(mocks.NewMockProvider("openai", "gpt-4"))
	e := newEngine(t, routing.Config{})

	_, err := e.Route(&routing.Request{Model: "unknown-model"}, snap, mocks.NewMockView())
	if _, ok := err.(*routing.ModelNotFoundError); !ok {
		t.Fatalf("Route() error = %v, want ModelNotFoundError", err)
	}
}

func TestEngine_CapabilityFilter(t *testing.T) {
	withStreaming := mocks.NewMockProvider("p-stream", "m")
	noStreaming := mocks.NewMockProvider("p-plain", "m")
	noStreaming.Desc.Capabilities = []providers.Capability{providers.CapSystemMsg}

	snap := newSnapshot(withStreaming, noStreaming)
	e := newEngine(t, routing.Config{})

	res, err := e.Route(&routing.Request{
		Model:    "m",
		Stream:   true,
		Required: []providers.Capability{providers.CapStreaming},
	}, snap, mocks.NewMockView())
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	for _, c := range res.Candidates {
		if c.Name() == "p-plain" {
			t.Fatal("candidate without streaming capability survived the filter")
		}
	}
}

func TestEngine_UnsupportedCapability(t *testing.T) {
	p := mocks.NewMockProvider("p1", "m")
	p.Desc.Capabilities = []providers.Capability{providers.CapSystemMsg}

	snap := newSnapshot(p)
	e := newEngine(t, routing.Config{})

	_, err := e.Route(&routing.Request{
		Model:    "m",
		Required: []providers.Capability{providers.CapStreaming},
	}, snap, mocks.NewMockView())

	capErr, ok := err.(*routing.UnsupportedCapabilityError)
	if !ok {
		t.Fatalf("Route() error = %v, want UnsupportedCapabilityError", err)
	}
	if capErr.Capability != providers.CapStreaming {
		t.Errorf("Capability = %q, want streaming", capErr.Capability)
	}
}

func TestEngine_HealthFilter(t *testing.T) {
	snap := newSnapshot(
		mocks.NewMockProvider("p1", "m"),
		mocks.NewMockProvider("p2", "m"),
	)
	e := newEngine(t, routing.Config{})

	view := mocks.NewMockView()
	view.Healths["p1"] = health.Snapshot{Status: health.StatusUnhealthy}

	res, err := e.Route(&routing.Request{Model: "m"}, snap, view)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Name() != "p2" {
		t.Fatalf("candidates = %v, want [p2]", names(res))
	}
	if res.LastResort {
		t.Error("LastResort = true with a healthy candidate present")
	}
}

func TestEngine_BreakerOpenFiltered(t *testing.T) {
	snap := newSnapshot(
		mocks.NewMockProvider("p1", "m"),
		mocks.NewMockProvider("p2", "m"),
	)
	e := newEngine(t, routing.Config{})

	view := mocks.NewMockView()
	view.Open["p1"] = 30 * time.Second // cooldown pending

	res, err := e.Route(&routing.Request{Model: "m"}, snap, view)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Name() != "p2" {
		t.Fatalf("candidates = %v, want [p2]", names(res))
	}
}

func TestEngine_LastResortFallback(t *testing.T) {
	snap := newSnapshot(mocks.NewMockProvider("p1", "m"))
	e := newEngine(t, routing.Config{})

	view := mocks.NewMockView()
	view.Healths["p1"] = health.Snapshot{Status: health.StatusUnhealthy}

	res, err := e.Route(&routing.Request{Model: "m"}, snap, view)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if !res.LastResort {
		t.Error("LastResort = false, want true when every candidate is unhealthy")
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %v, want the unfiltered set", names(res))
	}
}

func TestEngine_RuleSelection(t *testing.T) {
	snap := newSnapshot(
		mocks.NewMockProvider("cheap", "m"),
		mocks.NewMockProvider("fast", "m"),
	)

	e := newEngine(t, routing.Config{
		Rules: []routing.Rule{
			{
				Name:     "tenant-pins-fast",
				When:     routing.Condition{TenantIn: []string{"acme"}},
				Strategy: "least-latency",
				Include:  []string{"fast"},
			},
			{
				Name: "everything-else",
				When: routing.Condition{Always: true},
			},
		},
	})

	// Matching tenant: rule filter applies.
	res, err := e.Route(&routing.Request{Model: "m", TenantID: "acme"}, snap, mocks.NewMockView())
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if res.Rule != "tenant-pins-fast" {
		t.Errorf("Rule = %q, want tenant-pins-fast", res.Rule)
	}
	if res.Strategy != "least-latency" {
		t.Errorf("Strategy = %q, want least-latency", res.Strategy)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Name() != "fast" {
		t.Fatalf("candidates = %v, want [fast]", names(res))
	}

	// Other tenants fall through to the always rule and default strategy.
	res, err = e.Route(&routing.Request{Model: "m", TenantID: "globex"}, snap, mocks.NewMockView())
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if res.Rule != "everything-else" {
		t.Errorf("Rule = %q, want everything-else", res.Rule)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %v, want both providers", names(res))
	}
}

func TestEngine_ConditionAlgebra(t *testing.T) {
	tests := []struct {
		name string
		cond routing.Condition
		req  routing.Request
		want bool
	}{
		{
			name: "model glob match",
			cond: routing.Condition{ModelGlob: "gpt-*"},
			req:  routing.Request{Model: "gpt-4"},
			want: true,
		},
		{
			name: "model glob miss",
			cond: routing.Condition{ModelGlob: "claude-*"},
			req:  routing.Request{Model: "gpt-4"},
			want: false,
		},
		{
			name: "not inverts",
			cond: routing.Condition{Not: &routing.Condition{ModelGlob: "gpt-*"}},
			req:  routing.Request{Model: "gpt-4"},
			want: false,
		},
		{
			name: "all requires every child",
			cond: routing.Condition{All: []routing.Condition{
				{ModelGlob: "gpt-*"},
				{TenantIn: []string{"acme"}},
			}},
			req:  routing.Request{Model: "gpt-4", TenantID: "acme"},
			want: true,
		},
		{
			name: "any requires one child",
			cond: routing.Condition{Any: []routing.Condition{
				{TenantIn: []string{"other"}},
				{ModelGlob: "gpt-*"},
			}},
			req:  routing.Request{Model: "gpt-4", TenantID: "acme"},
			want: true,
		},
		{
			name: "empty condition matches nothing",
			cond: routing.Condition{},
			req:  routing.Request{Model: "gpt-4"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := newSnapshot(mocks.NewMockProvider("p1", tt.req.Model))
			e := newEngine(t, routing.Config{
				Rules: []routing.Rule{{Name: "probe", When: tt.cond, Include: []string{"p1"}}},
			})

			res, err := e.Route(&tt.req, snap, mocks.NewMockView())
			if err != nil {
				t.Fatalf("Route() error = %v", err)
			}

			matched := res.Rule == "probe"
			if matched != tt.want {
				t.Errorf("condition matched = %v, want %v", matched, tt.want)
			}
		})
	}
}

func TestEngine_PreferredProviderPinned(t *testing.T) {
	snap := newSnapshot(
		mocks.NewMockProvider("p1", "m"),
		mocks.NewMockProvider("p2", "m"),
		mocks.NewMockProvider("p3", "m"),
	)
	e := newEngine(t, routing.Config{DefaultStrategy: "least-connections"})

	res, err := e.Route(&routing.Request{Model: "m", Preferred: "p3"}, snap, mocks.NewMockView())
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if res.Candidates[0].Name() != "p3" {
		t.Fatalf("primary = %q, want preferred p3", res.Candidates[0].Name())
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("candidates = %v, want all three", names(res))
	}
}

func TestEngine_AliasResolution(t *testing.T) {
	snap := newSnapshot(mocks.NewMockProvider("openai", "gpt-4"))
	e := newEngine(t, routing.Config{})

	canonical := snap.Resolve("gpt-4-latest")
	if canonical != "gpt-4" {
		t.Fatalf("Resolve() = %q, want gpt-4", canonical)
	}

	res, err := e.Route(&routing.Request{Model: canonical}, snap, mocks.NewMockView())
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if res.Candidates[0].Name() != "openai" {
		t.Fatalf("primary = %q, want openai", res.Candidates[0].Name())
	}
}

func TestEngine_Deterministic(t *testing.T) {
	// Same snapshot, same view, same request: identical order every time.
	snap := newSnapshot(
		mocks.NewMockProvider("p1", "m"),
		mocks.NewMockProvider("p2", "m"),
		mocks.NewMockProvider("p3", "m"),
	)
	e := newEngine(t, routing.Config{DefaultStrategy: "least-latency"})
	view := mocks.NewMockView()
	view.Healths["p2"] = health.Snapshot{
		Status: health.StatusHealthy, SuccessRate: 1,
		P95: 100 * time.Millisecond, Observations: 50,
	}

	var first []string
	for i := 0; i < 10; i++ {
		res, err := e.Route(&routing.Request{Model: "m"}, snap, view)
		if err != nil {
			t.Fatalf("Route() error = %v", err)
		}
		got := names(res)
		if first == nil {
			first = got
			continue
		}
		for j := range got {
			if got[j] != first[j] {
				t.Fatalf("order changed between identical calls: %v vs %v", got, first)
			}
		}
	}

	if first[0] != "p2" {
		t.Fatalf("primary = %q, want measured-fast p2", first[0])
	}
}

func names(res *routing.Result) []string {
	out := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		out[i] = c.Name()
	}
	return out
}
