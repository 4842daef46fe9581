package strategies

import (
	"helios-hq/relay/pkg/routing"
)

// LowestCost orders candidates by the estimated dollar cost of the request
// under each provider's pricing, cheapest first. The estimate is
// input_rate·est_in + output_rate·est_out, computed when the candidate list
// was built.
type LowestCost struct{}

// NewLowestCost creates a lowest-cost strategy.
func NewLowestCost() *LowestCost {
	return &LowestCost{}
}

// Name returns the strategy's configuration name.
func (s *LowestCost) Name() string {
	return "lowest-cost"
}

// Order sorts by estimated cost ascending, ties broken by name.
func (s *LowestCost) Order(req *routing.Request, candidates []*routing.Candidate) []*routing.Candidate {
	return orderBy(candidates, func(c *routing.Candidate) float64 {
		return c.EstCost
	})
}
