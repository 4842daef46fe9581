package strategies

import (
	"helios-hq/relay/pkg/routing"
)

// LeastConnections orders candidates by in-flight request count, fewest
// first.
type LeastConnections struct{}

// NewLeastConnections creates a least-connections strategy.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

// Name returns the strategy's configuration name.
func (s *LeastConnections) Name() string {
	return "least-connections"
}

// Order sorts by inflight ascending, ties broken by name.
func (s *LeastConnections) Order(req *routing.Request, candidates []*routing.Candidate) []*routing.Candidate {
	return orderBy(candidates, func(c *routing.Candidate) float64 {
		return float64(c.Inflight)
	})
}
