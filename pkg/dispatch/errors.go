package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitedError is the gateway's own admission denial (not an upstream
// 429). No provider was contacted.
type RateLimitedError struct {
	// Scope is the rate-limit scope that denied the request.
	Scope string

	// RetryAfter is when a token will be available.
	RetryAfter time.Duration

	// Limit and Remaining feed the X-RateLimit response headers.
	Limit     int64
	Remaining int64
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for scope %q (retry after %s)", e.Scope, e.RetryAfter)
}

// DrainingError indicates the gateway is shutting down and rejecting new
// requests.
type DrainingError struct{}

// Error implements the error interface.
func (e *DrainingError) Error() string {
	return "gateway is draining, not accepting new requests"
}

// AttemptOutcome records one provider attempt for the failure report.
type AttemptOutcome struct {
	// Provider is the attempted provider's name.
	Provider string

	// Err is the attempt's failure.
	Err error

	// BreakerDenied is true when the breaker rejected the attempt without
	// an upstream call.
	BreakerDenied bool
}

// AllProvidersFailedError indicates every candidate was exhausted.
type AllProvidersFailedError struct {
	// Model is the canonical model routed for.
	Model string

	// Attempts lists the per-provider outcomes in order.
	Attempts []AttemptOutcome

	// AllBreakersOpen is true when no upstream call was ever made because
	// every candidate's breaker denied; maps to 503 + Retry-After.
	AllBreakersOpen bool

	// RetryAfter is the shortest breaker cooldown among denied candidates.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.BreakerDenied {
			parts = append(parts, a.Provider+": circuit open")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("all providers failed for model %q: %s", e.Model, strings.Join(parts, "; "))
}

// LastError returns the final upstream error, nil when every attempt was
// breaker-denied.
func (e *AllProvidersFailedError) LastError() error {
	for i := len(e.Attempts) - 1; i >= 0; i-- {
		if e.Attempts[i].Err != nil {
			return e.Attempts[i].Err
		}
	}
	return nil
}
