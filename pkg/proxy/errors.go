package proxy

import (
	"context"
	"errors"
	"fmt"

	"helios-hq/relay/pkg/dispatch"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy/types"
	"helios-hq/relay/pkg/routing"
)

// MapError translates any error surfacing from the dispatch pipeline into
// the client-visible envelope. The mapping is exhaustive over the error
// taxonomy; anything unrecognized becomes internal_error without leaking
// detail.
func MapError(err error, requestID string) *types.ErrorResponse {
	// Gateway-side admission.
	var rateLimited *dispatch.RateLimitedError
	if errors.As(err, &rateLimited) {
		return types.NewError(types.ErrorTypeRateLimit,
			fmt.Sprintf("Rate limit exceeded for scope %q. Retry after %.0f seconds.",
				rateLimited.Scope, rateLimited.RetryAfter.Seconds()),
			types.CodeRateLimited, requestID)
	}

	var draining *dispatch.DrainingError
	if errors.As(err, &draining) {
		return types.NewError(types.ErrorTypeProvider,
			"The gateway is shutting down and not accepting new requests.",
			types.CodeDraining, requestID)
	}

	// Routing.
	var modelNotFound *routing.ModelNotFoundError
	if errors.As(err, &modelNotFound) {
		return types.NewError(types.ErrorTypeNotFound,
			fmt.Sprintf("The model %q does not exist or is not served by any configured provider.", modelNotFound.Model),
			types.CodeModelNotFound, requestID).WithParam("model")
	}

	var unsupported *routing.UnsupportedCapabilityError
	if errors.As(err, &unsupported) {
		return types.NewError(types.ErrorTypeInvalidRequest,
			fmt.Sprintf("No provider serving model %q supports %q.", unsupported.Model, unsupported.Capability),
			types.CodeUnsupported, requestID)
	}

	var noCandidates *routing.NoCandidatesError
	if errors.As(err, &noCandidates) {
		return types.NewError(types.ErrorTypeProvider,
			"No candidate providers are available for this request.",
			types.CodeNoCandidates, requestID)
	}

	// Validation (either layer).
	var wireValidation *types.ValidationError
	if errors.As(err, &wireValidation) {
		return types.NewError(types.ErrorTypeInvalidRequest,
			wireValidation.Message, types.CodeInvalidValue, requestID).WithParam(wireValidation.Field)
	}

	var validation *providers.ValidationError
	if errors.As(err, &validation) {
		return types.NewError(types.ErrorTypeInvalidRequest,
			validation.Message, types.CodeInvalidValue, requestID).WithParam(validation.Field)
	}

	var badJSON *jsonError
	if errors.As(err, &badJSON) {
		return types.NewError(types.ErrorTypeInvalidRequest,
			"The request body is not valid JSON.", types.CodeInvalidJSON, requestID)
	}

	// Exhausted failover.
	var allFailed *dispatch.AllProvidersFailedError
	if errors.As(err, &allFailed) {
		if allFailed.AllBreakersOpen {
			return types.NewError(types.ErrorTypeProvider,
				"All candidate providers are temporarily unavailable (circuit breakers open).",
				types.CodeCircuitBreakerOpen, requestID)
		}
		if last := allFailed.LastError(); last != nil {
			return mapProviderError(last, requestID)
		}
		return types.NewError(types.ErrorTypeProvider,
			"All candidate providers failed.", types.CodeProviderError, requestID)
	}

	return mapProviderError(err, requestID)
}

// mapProviderError handles errors originating at one upstream.
func mapProviderError(err error, requestID string) *types.ErrorResponse {
	var encode *providers.EncodeError
	if errors.As(err, &encode) {
		return types.NewError(types.ErrorTypeInvalidRequest,
			fmt.Sprintf("The request cannot be encoded for the selected provider: %s.", encode.Message),
			types.CodeUnsupported, requestID)
	}

	var decode *providers.DecodeError
	if errors.As(err, &decode) {
		return types.NewError(types.ErrorTypeProvider,
			"The upstream provider returned a malformed response.",
			types.CodeUpstreamMalformed, requestID)
	}

	var timeout *providers.TimeoutError
	if errors.As(err, &timeout) {
		return types.NewError(types.ErrorTypeTimeout,
			"The upstream provider did not respond in time.",
			types.CodeProviderTimeout, requestID)
	}

	var rateLimit *providers.RateLimitError
	if errors.As(err, &rateLimit) {
		return types.NewError(types.ErrorTypeRateLimit,
			"The upstream provider rate limited the request.",
			types.CodeRateLimited, requestID)
	}

	var auth *providers.AuthError
	if errors.As(err, &auth) {
		// Misconfigured upstream credentials are a gateway fault from the
		// client's point of view.
		return types.NewError(types.ErrorTypeProvider,
			"The upstream provider rejected the gateway's credentials.",
			types.CodeProviderError, requestID)
	}

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		if provErr.StatusCode >= 400 && provErr.StatusCode < 500 {
			return types.NewError(types.ErrorTypeInvalidRequest,
				"The upstream provider rejected the request.",
				types.CodeInvalidValue, requestID)
		}
		return types.NewError(types.ErrorTypeProvider,
			"The upstream provider returned an error.",
			types.CodeProviderError, requestID)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrorTypeTimeout,
			"The request deadline was exceeded.",
			types.CodeProviderTimeout, requestID)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrorTypeInvalidRequest,
			"The client closed the connection.",
			"client_disconnected", requestID)
	}

	// Invariant violations and panics surface here: never leak internals.
	return types.NewError(types.ErrorTypeInternal,
		"An internal error occurred.", types.CodeInternalError, requestID)
}

// StreamInterruptionError builds the in-stream terminal error frame for a
// failure after the first chunk was flushed.
func StreamInterruptionError(requestID string) *types.ErrorResponse {
	return types.NewError(types.ErrorTypeProvider,
		"The upstream stream was interrupted.",
		types.CodeStreamInterrupted, requestID)
}
