// Package strategies implements the provider selection strategies used by
// the routing engine. Each strategy orders a candidate list best-first with
// deterministic tie-breaks by provider name.
package strategies

import (
	"sort"

	"helios-hq/relay/pkg/routing"
)

// Registry returns the full strategy set keyed by configuration name.
func Registry() map[string]routing.Strategy {
	return map[string]routing.Strategy{
		"round-robin":       NewRoundRobin(),
		"least-latency":     NewLeastLatency(),
		"least-connections": NewLeastConnections(),
		"lowest-cost":       NewLowestCost(),
		"weighted-random":   NewWeightedRandom(),
		"power-of-two":      NewPowerOfTwo(),
	}
}

// orderBy returns a copy of candidates sorted by the given score
// (ascending), ties broken by provider name.
func orderBy(candidates []*routing.Candidate, score func(*routing.Candidate) float64) []*routing.Candidate {
	out := make([]*routing.Candidate, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := score(out[i]), score(out[j])
		if si != sj {
			return si < sj
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// rotate returns candidates rotated left by n mod len.
func rotate(candidates []*routing.Candidate, n int) []*routing.Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	k := n % len(candidates)
	if k < 0 {
		k += len(candidates)
	}
	out := make([]*routing.Candidate, 0, len(candidates))
	out = append(out, candidates[k:]...)
	out = append(out, candidates[:k]...)
	return out
}

// moveToFront returns candidates with the element at index i first and the
// rest in their original order.
func moveToFront(candidates []*routing.Candidate, i int) []*routing.Candidate {
	out := make([]*routing.Candidate, 0, len(candidates))
	out = append(out, candidates[i])
	out = append(out, candidates[:i]...)
	out = append(out, candidates[i+1:]...)
	return out
}
