package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"helios-hq/relay/pkg/providers"
)

// outcomeClass buckets a failed attempt for the retry/failover decision.
type outcomeClass int

const (
	// classRetryable: network errors, connect/read timeouts, 408 and 5xx,
	// provider-declared internal errors. Retry same candidate with
	// backoff, then fail over.
	classRetryable outcomeClass = iota

	// classRateLimited: upstream 429. Recorded as a health failure but
	// never advances the breaker; move to the next candidate immediately.
	classRateLimited

	// classFatal: client-caused or codec failures (400-class, encode,
	// decode). Surface immediately; no retry, no failover.
	classFatal

	// classCanceled: the inbound client went away. No breaker outcome.
	classCanceled
)

// classify maps an invocation error to its outcome class and extracts the
// provider's Retry-After hint when present.
func classify(err error) (outcomeClass, time.Duration) {
	if errors.Is(err, context.Canceled) {
		return classCanceled, 0
	}

	var rateLimit *providers.RateLimitError
	if errors.As(err, &rateLimit) {
		return classRateLimited, rateLimit.RetryAfter
	}

	var encode *providers.EncodeError
	if errors.As(err, &encode) {
		return classFatal, 0
	}

	var decode *providers.DecodeError
	if errors.As(err, &decode) {
		return classFatal, 0
	}

	var auth *providers.AuthError
	if errors.As(err, &auth) {
		return classFatal, 0
	}

	var validation *providers.ValidationError
	if errors.As(err, &validation) {
		return classFatal, 0
	}

	var timeout *providers.TimeoutError
	if errors.As(err, &timeout) {
		return classRetryable, 0
	}

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.StatusCode {
		case 0:
			// Transport-level failure with no status: retryable.
			return classRetryable, 0
		case http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return classRetryable, 0
		default:
			if provErr.StatusCode >= 400 && provErr.StatusCode < 500 {
				return classFatal, 0
			}
			if provErr.StatusCode >= 500 {
				return classRetryable, 0
			}
			return classFatal, 0
		}
	}

	var streamErr *providers.StreamError
	if errors.As(err, &streamErr) {
		// A stream failure before the first chunk is a provider fault;
		// retry-then-failover applies.
		return classRetryable, 0
	}

	// Unrecognized errors are treated as provider faults.
	return classRetryable, 0
}
