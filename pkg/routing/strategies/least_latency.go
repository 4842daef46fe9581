package strategies

import (
	"helios-hq/relay/pkg/routing"
)

// LeastLatency orders candidates by their p95 latency estimate, fastest
// first. Providers with no latency history yet sort after those with one,
// so traffic prefers measured-fast providers over unknowns.
type LeastLatency struct{}

// NewLeastLatency creates a least-latency strategy.
func NewLeastLatency() *LeastLatency {
	return &LeastLatency{}
}

// Name returns the strategy's configuration name.
func (s *LeastLatency) Name() string {
	return "least-latency"
}

// Order sorts by p95 ascending, ties broken by name.
func (s *LeastLatency) Order(req *routing.Request, candidates []*routing.Candidate) []*routing.Candidate {
	return orderBy(candidates, func(c *routing.Candidate) float64 {
		p95 := c.Health.P95.Seconds()
		if c.Health.Observations == 0 {
			// Unmeasured providers rank behind any measured one.
			return 1e9
		}
		return p95
	})
}
