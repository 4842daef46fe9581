package routing

import (
	"log/slog"
	"sort"

	"helios-hq/relay/pkg/health"
	"helios-hq/relay/pkg/providers"
)

// Config holds the routing rules and the default strategy name.
type Config struct {
	// Rules are walked in declared order; the first match wins.
	Rules []Rule

	// DefaultStrategy applies when no rule matches. Default: "round-robin".
	DefaultStrategy string
}

// Engine selects an ordered candidate list for each request.
//
// The engine itself holds no mutable state: every mutable read (health
// snapshots, inflight counters, breaker state) is taken once per call
// through the StateView, so routing is a pure function of the registry
// snapshot, the view and the request.
type Engine struct {
	cfg        Config
	strategies map[string]Strategy
}

// NewEngine creates an engine with the given rule set and strategy
// registry.
func NewEngine(cfg Config, strategies map[string]Strategy) (*Engine, error) {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = "round-robin"
	}
	if _, ok := strategies[cfg.DefaultStrategy]; !ok {
		return nil, &UnknownStrategyError{Strategy: cfg.DefaultStrategy}
	}
	for _, rule := range cfg.Rules {
		if rule.Strategy == "" {
			continue
		}
		if _, ok := strategies[rule.Strategy]; !ok {
			return nil, &UnknownStrategyError{Strategy: rule.Strategy}
		}
	}
	return &Engine{cfg: cfg, strategies: strategies}, nil
}

// Route produces the ordered candidate list for req against the given
// registry snapshot.
func (e *Engine) Route(req *Request, snap *providers.Snapshot, view StateView) (*Result, error) {
	// 1. Model resolution (the caller already aliased req.Model).
	descs := snap.ForModel(req.Model)
	if len(descs) == 0 {
		return nil, &ModelNotFoundError{Model: req.Model, Available: snap.Models()}
	}

	// 2. Capability filter.
	filtered := descs[:0:0]
	for _, d := range descs {
		if hasAllCapabilities(d, req.Required) {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) == 0 {
		missing := firstMissingCapability(descs, req.Required)
		return nil, &UnsupportedCapabilityError{Model: req.Model, Capability: missing}
	}

	candidates := e.buildCandidates(req, filtered, view)

	// 3. Rule application: first matching rule selects strategy + filter.
	strategyName := e.cfg.DefaultStrategy
	ruleName := ""
	rc := &ruleContext{req: req, candidates: candidates, minCost: minCost(candidates)}

	for i := range e.cfg.Rules {
		rule := &e.cfg.Rules[i]
		if !rule.When.Match(rc) {
			continue
		}
		ruleName = rule.Name
		if rule.Strategy != "" {
			strategyName = rule.Strategy
		}
		candidates = rule.applyFilter(candidates)
		break
	}
	if len(candidates) == 0 {
		return nil, &NoCandidatesError{Model: req.Model, Rule: ruleName}
	}

	// 4. Health filter: drop open-breaker (cooldown pending) and unhealthy
	// providers; fall back to the full post-rule set when that empties it.
	lastResort := false
	healthy := healthFilter(candidates)
	if len(healthy) == 0 {
		lastResort = true
		healthy = candidates
		slog.Warn("all candidates unhealthy, routing last-resort",
			"request_id", req.RequestID,
			"model", req.Model,
		)
	}

	// 5-6. Strategy ordering, preferred-provider pin, region affinity.
	// Stateful strategies scope their counters by the matched rule, so the
	// request is handed over with the rule name attached.
	strategy := e.strategies[strategyName]
	scoped := *req
	scoped.RuleScope = ruleName
	ordered := strategy.Order(&scoped, healthy)
	ordered = pinPreferred(ordered, req.Preferred)
	ordered = regionAffinity(ordered)

	slog.Debug("routing decision",
		"request_id", req.RequestID,
		"model", req.Model,
		"strategy", strategyName,
		"rule", ruleName,
		"primary", ordered[0].Name(),
		"candidates", len(ordered),
		"last_resort", lastResort,
	)

	return &Result{
		Candidates: ordered,
		Strategy:   strategyName,
		Rule:       ruleName,
		LastResort: lastResort,
	}, nil
}

// buildCandidates snapshots the mutable per-provider state exactly once.
func (e *Engine) buildCandidates(req *Request, descs []*providers.Descriptor, view StateView) []*Candidate {
	out := make([]*Candidate, 0, len(descs))
	for _, d := range descs {
		open, remaining := view.BreakerOpen(d.Name)
		out = append(out, &Candidate{
			Desc:              d,
			Health:            view.Health(d.Name),
			BreakerOpen:       open,
			CooldownRemaining: remaining,
			Inflight:          view.Inflight(d.Name),
			EstCost:           d.EstimateCost(req.EstInputTokens, req.EstOutputTokens),
		})
	}
	// Deterministic base order before any strategy runs.
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// healthFilter removes candidates whose breaker is open with cooldown
// remaining, and those classified unhealthy.
func healthFilter(candidates []*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.BreakerOpen && c.CooldownRemaining > 0 {
			continue
		}
		if c.Health.Status == health.StatusUnhealthy {
			continue
		}
		out = append(out, c)
	}
	return out
}

// pinPreferred moves the named provider to the front when present.
func pinPreferred(ordered []*Candidate, preferred string) []*Candidate {
	if preferred == "" {
		return ordered
	}
	for i, c := range ordered {
		if c.Name() == preferred {
			out := make([]*Candidate, 0, len(ordered))
			out = append(out, c)
			out = append(out, ordered[:i]...)
			out = append(out, ordered[i+1:]...)
			return out
		}
	}
	return ordered
}

// regionAffinity stable-partitions the failover tail so candidates sharing
// the primary's region come first.
func regionAffinity(ordered []*Candidate) []*Candidate {
	if len(ordered) <= 2 {
		return ordered
	}
	region := ordered[0].Desc.Region
	if region == "" {
		return ordered
	}

	out := make([]*Candidate, 0, len(ordered))
	out = append(out, ordered[0])
	for _, c := range ordered[1:] {
		if c.Desc.Region == region {
			out = append(out, c)
		}
	}
	for _, c := range ordered[1:] {
		if c.Desc.Region != region {
			out = append(out, c)
		}
	}
	return out
}

func hasAllCapabilities(d *providers.Descriptor, required []providers.Capability) bool {
	for _, cap := range required {
		if !d.HasCapability(cap) {
			return false
		}
	}
	return true
}

// firstMissingCapability reports which required capability no descriptor
// satisfies, for the error message.
func firstMissingCapability(descs []*providers.Descriptor, required []providers.Capability) providers.Capability {
	for _, cap := range required {
		anyHas := false
		for _, d := range descs {
			if d.HasCapability(cap) {
				anyHas = true
				break
			}
		}
		if !anyHas {
			return cap
		}
	}
	if len(required) > 0 {
		return required[0]
	}
	return ""
}

// minCost returns the cheapest candidate's estimated cost, 0 for an empty
// set.
func minCost(candidates []*Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	min := candidates[0].EstCost
	for _, c := range candidates[1:] {
		if c.EstCost < min {
			min = c.EstCost
		}
	}
	return min
}

// RequiredCapabilities derives the capability set a request needs from its
// shape plus explicit hints.
func RequiredCapabilities(req *providers.CompletionRequest) []providers.Capability {
	seen := make(map[providers.Capability]bool)
	var out []providers.Capability

	add := func(c providers.Capability) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	if req.Stream {
		add(providers.CapStreaming)
	}
	if len(req.Tools) > 0 {
		add(providers.CapTools)
	}
	if req.RequiresVision() {
		add(providers.CapVision)
	}
	for _, c := range req.Hints.RequiredCapabilities {
		add(c)
	}
	return out
}
