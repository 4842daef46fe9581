package providers

import (
	"time"

	"helios-hq/relay/pkg/providers"
)

// TestDescriptor builds a descriptor pointed at a mock upstream, with
// short timeouts and no backoff so tests run fast.
func TestDescriptor(name, baseURL string, models ...string) *providers.Descriptor {
	if len(models) == 0 {
		models = []string{"gpt-4"}
	}
	return &providers.Descriptor{
		Name:    name,
		Kind:    providers.KindOpenAI,
		BaseURL: baseURL,
		Auth:    providers.AuthConfig{Kind: providers.AuthBearer, Token: "test-key"},
		Models:  models,
		Capabilities: []providers.Capability{
			providers.CapStreaming,
			providers.CapTools,
			providers.CapSystemMsg,
		},
		Weight:  1,
		Enabled: true,
		Timeouts: providers.TimeoutPolicy{
			Connect: 2 * time.Second,
			Total:   5 * time.Second,
		},
		Retry: providers.RetryPolicy{
			MaxRetries:  2,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  5 * time.Millisecond,
			Multiplier:  2,
			Jitter:      0.25,
		},
		Breaker: providers.BreakerPolicy{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			HalfOpenMax:      3,
			Cooldown:         60 * time.Second,
			MaxCooldown:      10 * time.Minute,
		},
		LatencyTarget:       2 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}
}
