package routing

import (
	"time"

	"helios-hq/relay/pkg/health"
	"helios-hq/relay/pkg/providers"
)

// Request carries the routing-relevant view of one inbound request.
// The model has already been resolved through the alias table.
type Request struct {
	// RequestID correlates log lines and telemetry.
	RequestID string

	// TenantID and PrincipalID identify the caller for rule matching.
	TenantID    string
	PrincipalID string

	// Model is the canonical model name.
	Model string

	// Stream is true for streaming requests.
	Stream bool

	// Required lists capabilities every candidate must declare, combining
	// the request's routing hints with capabilities implied by its shape
	// (stream → streaming, tools → tools, image parts → vision).
	Required []providers.Capability

	// Preferred pins the primary to a provider by name when set and
	// present among the candidates.
	Preferred string

	// EstInputTokens and EstOutputTokens feed cost-based selection.
	EstInputTokens  int
	EstOutputTokens int

	// RuleScope is the name of the matched routing rule, empty on the
	// default path. Set by the engine before strategy ordering; stateful
	// strategies (round-robin) keep their counters per scope.
	RuleScope string
}

// Candidate is one provider that survived filtering, together with the
// atomic state snapshots the strategies rank by. All mutable reads are
// taken once, when the candidate list is built; given a fixed snapshot and
// a fixed now, routing is a pure function.
type Candidate struct {
	// Desc is the provider's immutable descriptor.
	Desc *providers.Descriptor

	// Health is the provider's health snapshot.
	Health health.Snapshot

	// BreakerOpen is true while the provider's breaker rejects calls.
	BreakerOpen bool

	// CooldownRemaining is the open breaker's remaining cooldown.
	CooldownRemaining time.Duration

	// Inflight is the provider's in-flight request count.
	Inflight int64

	// EstCost is the estimated dollar cost of this request on this
	// provider.
	EstCost float64
}

// Name returns the candidate's provider name.
func (c *Candidate) Name() string {
	return c.Desc.Name
}

// StateView supplies the per-provider mutable state snapshots consumed
// during candidate construction. Implemented by the dispatch runtime.
type StateView interface {
	// Health returns the provider's current health snapshot.
	Health(name string) health.Snapshot

	// BreakerOpen reports whether the provider's breaker is open and the
	// remaining cooldown if so.
	BreakerOpen(name string) (bool, time.Duration)

	// Inflight returns the provider's in-flight request count.
	Inflight(name string) int64
}

// Result is the routing outcome: an ordered candidate list. The first
// entry is the primary; the remainder is the failover sequence.
type Result struct {
	// Candidates is the ordered list, primary first.
	Candidates []*Candidate

	// Strategy is the name of the strategy that produced the order.
	Strategy string

	// Rule is the name of the matched rule, empty for the default path.
	Rule string

	// LastResort is true when the health filter removed every candidate
	// and routing fell back to the unfiltered post-rule set.
	LastResort bool
}

// Strategy orders candidates best-first. Implementations must be safe for
// concurrent use and break ties by descriptor name so a fixed input yields
// a fixed order.
type Strategy interface {
	// Name returns the strategy's configuration name.
	Name() string

	// Order returns the candidates ranked best-first. The input slice is
	// not mutated.
	Order(req *Request, candidates []*Candidate) []*Candidate
}
