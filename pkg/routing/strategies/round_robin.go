package strategies

import (
	"sync"
	"sync/atomic"

	"helios-hq/relay/pkg/routing"
)

// RoundRobin rotates the primary across candidates. The rotation counter is
// atomic and kept per rule-scope (the matched rule's name, empty for the
// default path), so two rules round-robin independently over their own
// candidate pools. The candidate list arrives name-sorted from the engine,
// which keeps the rotation stable across calls with the same set.
type RoundRobin struct {
	counters sync.Map // rule-scope -> *atomic.Int64
}

// NewRoundRobin creates a round-robin strategy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name returns the strategy's configuration name.
func (s *RoundRobin) Name() string {
	return "round-robin"
}

// Order rotates the name-sorted candidate list by the scope's next counter
// value.
func (s *RoundRobin) Order(req *routing.Request, candidates []*routing.Candidate) []*routing.Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	counter := s.counter(req.RuleScope)
	count := counter.Add(1) - 1

	// Keep the counter bounded; an occasional double-reset under race is
	// harmless for rotation purposes.
	if count >= 1_000_000_000 {
		counter.CompareAndSwap(count+1, 0)
	}

	return rotate(candidates, int(count%int64(len(candidates))))
}

// counter returns the scope's counter, creating it on first sight.
func (s *RoundRobin) counter(scope string) *atomic.Int64 {
	if c, ok := s.counters.Load(scope); ok {
		return c.(*atomic.Int64)
	}
	c, _ := s.counters.LoadOrStore(scope, &atomic.Int64{})
	return c.(*atomic.Int64)
}
