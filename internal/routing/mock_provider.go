// Package routing provides test doubles for the routing engine and
// strategy tests.
package routing

import (
	"context"
	"time"

	"helios-hq/relay/pkg/health"
	"helios-hq/relay/pkg/providers"
)

// MockProvider is a Provider stub carrying only a descriptor. Calls that
// would hit the network panic so tests cannot silently depend on them.
type MockProvider struct {
	Desc *providers.Descriptor
}

// NewMockProvider creates a stub with a permissive default descriptor.
func NewMockProvider(name string, models ...string) *MockProvider {
	if len(models) == 0 {
		models = []string{"test-model"}
	}
	return &MockProvider{
		Desc: &providers.Descriptor{
			Name:    name,
			Kind:    providers.KindOpenAI,
			Models:  models,
			Enabled: true,
			Weight:  1,
			Capabilities: []providers.Capability{
				providers.CapStreaming,
				providers.CapTools,
				providers.CapSystemMsg,
			},
		},
	}
}

func (m *MockProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	panic("mock provider invoked")
}

func (m *MockProvider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (providers.StreamDecoder, error) {
	panic("mock provider invoked")
}

func (m *MockProvider) Probe(ctx context.Context) providers.ProbeResult {
	return providers.ProbeResult{OK: true}
}

func (m *MockProvider) Name() string                     { return m.Desc.Name }
func (m *MockProvider) Kind() providers.Kind             { return m.Desc.Kind }
func (m *MockProvider) Descriptor() *providers.Descriptor { return m.Desc }
func (m *MockProvider) Close() error                     { return nil }

// MockView is a StateView backed by plain maps.
type MockView struct {
	Healths   map[string]health.Snapshot
	Open      map[string]time.Duration // provider -> cooldown remaining
	Inflights map[string]int64
}

// NewMockView creates an empty view: every provider healthy, closed, idle.
func NewMockView() *MockView {
	return &MockView{
		Healths:   make(map[string]health.Snapshot),
		Open:      make(map[string]time.Duration),
		Inflights: make(map[string]int64),
	}
}

func (v *MockView) Health(name string) health.Snapshot {
	if snap, ok := v.Healths[name]; ok {
		return snap
	}
	return health.Snapshot{Status: health.StatusHealthy, SuccessRate: 1}
}

func (v *MockView) BreakerOpen(name string) (bool, time.Duration) {
	remaining, ok := v.Open[name]
	return ok, remaining
}

func (v *MockView) Inflight(name string) int64 {
	return v.Inflights[name]
}
