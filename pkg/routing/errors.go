package routing

import (
	"fmt"
	"strings"

	"helios-hq/relay/pkg/providers"
)

// ModelNotFoundError indicates no configured provider serves the requested
// model.
type ModelNotFoundError struct {
	// Model is the canonical model that failed to resolve.
	Model string

	// Available lists the models the gateway does serve.
	Available []string
}

// Error implements the error interface.
func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not served by any configured provider (available: %s)",
		e.Model, strings.Join(e.Available, ", "))
}

// UnsupportedCapabilityError indicates every provider serving the model
// lacks a required capability.
type UnsupportedCapabilityError struct {
	// Model is the canonical model.
	Model string

	// Capability is the missing capability.
	Capability providers.Capability
}

// Error implements the error interface.
func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("no provider serving model %q supports capability %q", e.Model, e.Capability)
}

// NoCandidatesError indicates rule filtering removed every provider.
type NoCandidatesError struct {
	// Model is the canonical model.
	Model string

	// Rule is the rule whose filter emptied the set.
	Rule string
}

// Error implements the error interface.
func (e *NoCandidatesError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("rule %q left no candidate providers for model %q", e.Rule, e.Model)
	}
	return fmt.Sprintf("no candidate providers for model %q", e.Model)
}

// UnknownStrategyError indicates a rule references a strategy that is not
// registered.
type UnknownStrategyError struct {
	// Strategy is the unresolved strategy name.
	Strategy string
}

// Error implements the error interface.
func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown routing strategy %q", e.Strategy)
}
