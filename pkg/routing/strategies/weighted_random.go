package strategies

import (
	"math/rand"
	"sync"

	"helios-hq/relay/pkg/routing"
)

// WeightedRandom samples candidates proportionally to their descriptor
// weight, without replacement. Zero-weight candidates are excluded from
// sampling and appended last in name order.
type WeightedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedRandom creates a weighted-random strategy seeded from the
// global source.
func NewWeightedRandom() *WeightedRandom {
	return &WeightedRandom{rng: rand.New(rand.NewSource(rand.Int63()))}
}

// NewWeightedRandomWithSeed creates a deterministic strategy for tests.
func NewWeightedRandomWithSeed(seed int64) *WeightedRandom {
	return &WeightedRandom{rng: rand.New(rand.NewSource(seed))}
}

// Name returns the strategy's configuration name.
func (s *WeightedRandom) Name() string {
	return "weighted-random"
}

// Order repeatedly samples from the remaining weighted candidates; the
// sampling sequence is the failover order.
func (s *WeightedRandom) Order(req *routing.Request, candidates []*routing.Candidate) []*routing.Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	weighted := make([]*routing.Candidate, 0, len(candidates))
	var excluded []*routing.Candidate
	for _, c := range candidates {
		if c.Desc.Weight > 0 {
			weighted = append(weighted, c)
		} else {
			excluded = append(excluded, c)
		}
	}

	// All weights zero: fall back to the deterministic base order.
	if len(weighted) == 0 {
		return candidates
	}

	out := make([]*routing.Candidate, 0, len(candidates))

	s.mu.Lock()
	for len(weighted) > 0 {
		total := 0.0
		for _, c := range weighted {
			total += c.Desc.Weight
		}

		pick := s.rng.Float64() * total
		idx := 0
		for i, c := range weighted {
			pick -= c.Desc.Weight
			if pick < 0 {
				idx = i
				break
			}
		}

		out = append(out, weighted[idx])
		weighted = append(weighted[:idx], weighted[idx+1:]...)
	}
	s.mu.Unlock()

	return append(out, excluded...)
}
