package routing

import (
	"path"

	"helios-hq/relay/pkg/providers"
)

// Condition is one node of the rule predicate algebra. Exactly one field
// should be set per node; composite nodes (All/Any/Not) nest further
// conditions. The algebra is closed: there is no escape to user code.
type Condition struct {
	// Always matches every request.
	Always bool `yaml:"always"`

	// ModelGlob matches the canonical model name against a glob pattern
	// ("gpt-4*", "claude-*").
	ModelGlob string `yaml:"model_glob"`

	// TenantIn matches when the request's tenant is in the list.
	TenantIn []string `yaml:"tenant_in"`

	// PrincipalIn matches when the request's principal is in the list.
	PrincipalIn []string `yaml:"principal_in"`

	// MaxCost matches when the cheapest candidate's estimated cost is at
	// most this many dollars; MinCost symmetrically.
	MaxCost *float64 `yaml:"max_cost"`
	MinCost *float64 `yaml:"min_cost"`

	// CapabilityRequired matches when the request requires the capability.
	CapabilityRequired providers.Capability `yaml:"capability_required"`

	// TagMatch matches when at least one candidate carries the tag.
	TagMatch string `yaml:"tag_match"`

	// All matches when every child matches; Any when at least one does;
	// Not inverts its child.
	All []Condition `yaml:"all"`
	Any []Condition `yaml:"any"`
	Not *Condition  `yaml:"not"`
}

// ruleContext is the evaluation input: the request plus aggregates over the
// current candidate set.
type ruleContext struct {
	req        *Request
	candidates []*Candidate
	minCost    float64
}

// Match evaluates the condition against the request.
func (c *Condition) Match(rc *ruleContext) bool {
	switch {
	case c.Always:
		return true

	case c.ModelGlob != "":
		ok, err := path.Match(c.ModelGlob, rc.req.Model)
		return err == nil && ok

	case len(c.TenantIn) > 0:
		return contains(c.TenantIn, rc.req.TenantID)

	case len(c.PrincipalIn) > 0:
		return contains(c.PrincipalIn, rc.req.PrincipalID)

	case c.MaxCost != nil:
		return rc.minCost <= *c.MaxCost

	case c.MinCost != nil:
		return rc.minCost >= *c.MinCost

	case c.CapabilityRequired != "":
		for _, cap := range rc.req.Required {
			if cap == c.CapabilityRequired {
				return true
			}
		}
		return false

	case c.TagMatch != "":
		for _, cand := range rc.candidates {
			if cand.Desc.HasTag(c.TagMatch) {
				return true
			}
		}
		return false

	case len(c.All) > 0:
		for i := range c.All {
			if !c.All[i].Match(rc) {
				return false
			}
		}
		return true

	case len(c.Any) > 0:
		for i := range c.Any {
			if c.Any[i].Match(rc) {
				return true
			}
		}
		return false

	case c.Not != nil:
		return !c.Not.Match(rc)
	}

	// An empty condition matches nothing; misconfigured rules stay inert.
	return false
}

// Rule binds a condition to a strategy and a provider filter. Rules are
// walked in declared order; the first match wins.
type Rule struct {
	// Name labels the rule in logs and telemetry.
	Name string `yaml:"name"`

	// When is the match condition.
	When Condition `yaml:"when"`

	// Strategy names the selection strategy for matching requests.
	Strategy string `yaml:"strategy"`

	// Include restricts candidates to the named providers when non-empty.
	Include []string `yaml:"include"`

	// Exclude removes the named providers from the candidate set.
	Exclude []string `yaml:"exclude"`

	// Region restricts candidates to providers tagged with this region.
	Region string `yaml:"region"`

	// Tag restricts candidates to providers carrying this tag.
	Tag string `yaml:"tag"`
}

// applyFilter narrows candidates per the rule's include/exclude/region/tag
// filters.
func (r *Rule) applyFilter(candidates []*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if len(r.Include) > 0 && !contains(r.Include, cand.Name()) {
			continue
		}
		if contains(r.Exclude, cand.Name()) {
			continue
		}
		if r.Region != "" && cand.Desc.Region != r.Region {
			continue
		}
		if r.Tag != "" && !cand.Desc.HasTag(r.Tag) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
