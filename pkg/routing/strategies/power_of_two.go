package strategies

import (
	"math/rand"
	"sync"

	"helios-hq/relay/pkg/routing"
)

// PowerOfTwo picks two candidates uniformly at random and keeps the one
// with fewer in-flight requests as primary. The classic power-of-two-
// choices result gives near-least-connections balance without scanning the
// whole pool on every request.
type PowerOfTwo struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPowerOfTwo creates a power-of-two strategy seeded from the global
// source.
func NewPowerOfTwo() *PowerOfTwo {
	return &PowerOfTwo{rng: rand.New(rand.NewSource(rand.Int63()))}
}

// NewPowerOfTwoWithSeed creates a deterministic strategy for tests.
func NewPowerOfTwoWithSeed(seed int64) *PowerOfTwo {
	return &PowerOfTwo{rng: rand.New(rand.NewSource(seed))}
}

// Name returns the strategy's configuration name.
func (s *PowerOfTwo) Name() string {
	return "power-of-two"
}

// Order picks two distinct candidates at random, promotes the less loaded
// one, and leaves the rest in base order as the failover tail.
func (s *PowerOfTwo) Order(req *routing.Request, candidates []*routing.Candidate) []*routing.Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	s.mu.Lock()
	i := s.rng.Intn(len(candidates))
	j := s.rng.Intn(len(candidates) - 1)
	s.mu.Unlock()
	if j >= i {
		j++
	}

	winner := i
	a, b := candidates[i], candidates[j]
	if b.Inflight < a.Inflight || (b.Inflight == a.Inflight && b.Name() < a.Name()) {
		winner = j
	}

	return moveToFront(candidates, winner)
}
