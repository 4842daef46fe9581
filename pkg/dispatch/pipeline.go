package dispatch

import (
	"context"
	"log/slog"
	"time"

	"helios-hq/relay/pkg/breaker"
	"helios-hq/relay/pkg/health"
	"helios-hq/relay/pkg/limits/ratelimit"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/routing"
	"helios-hq/relay/pkg/stream"
	"helios-hq/relay/pkg/telemetry/metrics"
)

// Result is the dispatch outcome: exactly one of Response or Stream is set.
type Result struct {
	// Response is the complete response for non-streaming requests.
	Response *providers.CompletionResponse

	// Stream is the coupled chunk stream for streaming requests. The
	// caller owns it and must drain or cancel it.
	Stream *stream.Stream

	// Provider is the name of the provider that served the request.
	Provider string
}

// Pipeline drives a request through admission, routing, breaker gating,
// invocation and retry/failover.
//
// A request is bound to at most one provider at a time: failover is
// sequential, never parallel, and the request is represented in exactly one
// provider's inflight counter until that attempt settles.
type Pipeline struct {
	registry *providers.Registry
	engine   *routing.Engine
	limiter  *ratelimit.Limiter
	runtime  *Runtime
	metrics  *metrics.DispatchMetrics
}

// NewPipeline assembles a pipeline. metrics may be nil in tests.
func NewPipeline(registry *providers.Registry, engine *routing.Engine, limiter *ratelimit.Limiter, runtime *Runtime, m *metrics.DispatchMetrics) *Pipeline {
	return &Pipeline{
		registry: registry,
		engine:   engine,
		limiter:  limiter,
		runtime:  runtime,
		metrics:  m,
	}
}

// Runtime exposes the runtime for the server layer (readiness, draining).
func (p *Pipeline) Runtime() *Runtime {
	return p.runtime
}

// Registry exposes the registry snapshot accessor.
func (p *Pipeline) Registry() *providers.Registry {
	return p.registry
}

// Dispatch runs one request to completion or failure.
func (p *Pipeline) Dispatch(ctx context.Context, req *providers.CompletionRequest) (*Result, error) {
	if p.runtime.Draining() {
		return nil, &DrainingError{}
	}

	// 1. Rate-limit admission. No provider is contacted on denial.
	decision := p.limiter.Admit(ratelimit.Keys{
		APIKey: req.PrincipalID,
		Tenant: req.TenantID,
		Route:  "chat-completions",
	})
	if !decision.Allowed {
		if p.metrics != nil {
			p.metrics.RecordRateLimited(string(decision.Scope))
		}
		return nil, &RateLimitedError{
			Scope:      string(decision.Scope),
			RetryAfter: decision.RetryAfter,
			Limit:      decision.Limit,
			Remaining:  decision.Remaining,
		}
	}

	p.runtime.beginRequest()
	finished := false
	defer func() {
		// Streaming requests stay active until their coupler completes;
		// everything else settles here.
		if finished {
			return
		}
		p.runtime.endRequest()
	}()

	// 2. Routing against the current registry generation. The snapshot
	// pointer is held for the whole request so a reload cannot swap
	// providers out from under it.
	snap := p.registry.Current()

	canonical := snap.Resolve(req.Model)
	estIn, estOut := routing.EstimateTokens(req)

	route, err := p.engine.Route(&routing.Request{
		RequestID:       req.RequestID,
		TenantID:        req.TenantID,
		PrincipalID:     req.PrincipalID,
		Model:           canonical,
		Stream:          req.Stream,
		Required:        routing.RequiredCapabilities(req),
		Preferred:       req.Hints.PreferredProvider,
		EstInputTokens:  estIn,
		EstOutputTokens: estOut,
	}, snap, p.runtime)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil && route.LastResort {
		p.metrics.RecordLastResort()
	}

	// Encode against the canonical model from here on.
	routed := *req
	routed.Model = canonical

	// 3. Sequential attempt loop over the candidate list.
	failure := &AllProvidersFailedError{Model: canonical, AllBreakersOpen: true}

	for _, candidate := range route.Candidates {
		result, done, err := p.tryCandidate(ctx, &routed, snap, candidate, failure)
		if done {
			if result != nil && result.Stream != nil {
				finished = true // endRequest deferred to the coupler
			}
			return result, err
		}
		// Not done: candidate exhausted, move to the next one.
	}

	// 4. Every candidate exhausted.
	if failure.AllBreakersOpen {
		if p.metrics != nil {
			p.metrics.RecordAllBreakersOpen()
		}
	}
	return nil, failure
}

// tryCandidate runs the per-candidate retry loop. It returns done=true when
// the dispatch should stop (success or fatal error); done=false means move
// to the next candidate.
func (p *Pipeline) tryCandidate(
	ctx context.Context,
	req *providers.CompletionRequest,
	snap *providers.Snapshot,
	candidate *routing.Candidate,
	failure *AllProvidersFailedError,
) (*Result, bool, error) {
	name := candidate.Name()
	prov, ok := snap.Provider(name)
	if !ok {
		return nil, false, nil
	}

	brk := p.runtime.Breaker(name)
	tracker := p.runtime.Tracker(name)
	retry := candidate.Desc.Retry
	policy := resolveBackoff(retry.BaseBackoff, retry.MaxBackoff, retry.Multiplier, retry.Jitter)

	maxAttempts := retry.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// a. Breaker permission. A denial skips to the next candidate,
		// not the next retry.
		permit := brk.Allow()
		p.publishBreakerState(name, brk, tracker)
		if !permit.OK {
			failure.Attempts = append(failure.Attempts, AttemptOutcome{Provider: name, BreakerDenied: true})
			if failure.RetryAfter == 0 || permit.RetryAfter < failure.RetryAfter {
				failure.RetryAfter = permit.RetryAfter
			}
			return nil, false, nil
		}

		// b. The request now lives in this provider's inflight counter.
		tracker.IncInflight()
		t0 := time.Now()

		var result *Result
		var err error
		if req.Stream {
			result, err = p.invokeStream(ctx, req, prov, permit, brk, tracker, t0)
		} else {
			result, err = p.invokeComplete(ctx, req, prov, permit, brk, tracker, t0)
		}

		if err == nil {
			failure.AllBreakersOpen = false
			return result, true, nil
		}

		class, retryAfter := classify(err)
		failure.AllBreakersOpen = false
		failure.Attempts = append(failure.Attempts, AttemptOutcome{Provider: name, Err: err})

		if p.metrics != nil {
			p.metrics.RecordAttemptError(name, errorLabel(class))
		}

		switch class {
		case classCanceled:
			// Client went away: not a provider failure, stop entirely.
			return nil, true, err

		case classFatal:
			// Malformed or forbidden request: surface immediately.
			slog.ErrorContext(ctx, "non-retryable provider error",
				"request_id", req.RequestID,
				"provider", name,
				"error", err,
			)
			return nil, true, err

		case classRateLimited:
			// Back-pressure: health sees the failure, the breaker does not.
			slog.WarnContext(ctx, "provider rate limited request",
				"request_id", req.RequestID,
				"provider", name,
				"retry_after", retryAfter,
			)
			return nil, false, err

		case classRetryable:
			slog.WarnContext(ctx, "provider attempt failed",
				"request_id", req.RequestID,
				"provider", name,
				"attempt", attempt+1,
				"max_attempts", maxAttempts,
				"error", err,
			)

			// A half-open probe failure moves on immediately; the breaker
			// has already re-opened.
			if permit.HalfOpen() {
				return nil, false, err
			}
			if attempt+1 >= maxAttempts {
				return nil, false, err
			}

			// f. Backoff before retrying the same candidate.
			if !sleepCtx(ctx, policy.delay(attempt, retryAfter)) {
				return nil, true, ctx.Err()
			}
		}
	}

	return nil, false, nil
}

// invokeComplete performs one non-streaming attempt and settles all
// accounting before returning.
func (p *Pipeline) invokeComplete(
	ctx context.Context,
	req *providers.CompletionRequest,
	prov providers.Provider,
	permit breaker.Permit,
	brk *breaker.Breaker,
	tracker *health.Tracker,
	t0 time.Time,
) (*Result, error) {
	resp, err := prov.SendCompletion(ctx, req)
	latency := time.Since(t0)
	tracker.DecInflight()

	p.settle(prov.Name(), permit, brk, tracker, err, latency)

	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.RecordSuccess(prov.Name(), req.Model, latency, resp.Usage)
	}
	return &Result{Response: resp, Provider: prov.Name()}, nil
}

// invokeStream opens a streaming attempt. The first chunk is awaited
// synchronously so pre-flush failures can still fail over; after that the
// coupler owns inflight and outcome accounting.
func (p *Pipeline) invokeStream(
	ctx context.Context,
	req *providers.CompletionRequest,
	prov providers.Provider,
	permit breaker.Permit,
	brk *breaker.Breaker,
	tracker *health.Tracker,
	t0 time.Time,
) (*Result, error) {
	dec, err := prov.StreamCompletion(ctx, req)
	if err != nil {
		latency := time.Since(t0)
		tracker.DecInflight()
		p.settle(prov.Name(), permit, brk, tracker, err, latency)
		return nil, err
	}

	name := prov.Name()
	model := req.Model

	s, err := stream.Open(ctx, dec, stream.Options{
		KeepAliveInterval: stream.DefaultKeepAliveInterval,
		OnDone: func(o stream.Outcome) {
			latency := time.Since(t0)
			tracker.DecInflight()

			if o.Canceled {
				// Client-side event: no breaker outcome, usage still
				// counted from what was emitted.
				if p.metrics != nil {
					p.metrics.RecordCanceled(name, model, usageOf(o.Usage))
				}
				p.runtime.endRequest()
				return
			}

			p.settle(name, permit, brk, tracker, o.Err, latency)
			if p.metrics != nil && o.Err == nil {
				p.metrics.RecordSuccess(name, model, latency, usageOf(o.Usage))
			}
			p.runtime.endRequest()
		},
	})
	if err != nil {
		// Stream failed before any chunk: settle here, failover remains
		// possible.
		latency := time.Since(t0)
		tracker.DecInflight()
		p.settle(name, permit, brk, tracker, err, latency)
		return nil, err
	}

	return &Result{Stream: s, Provider: name}, nil
}

// settle records one attempt outcome on the breaker and health tracker,
// honoring the classification rules: 429 and cancellation never advance
// the breaker.
func (p *Pipeline) settle(name string, permit breaker.Permit, brk *breaker.Breaker, tracker *health.Tracker, err error, latency time.Duration) {
	if err == nil {
		brk.Record(permit, true)
		tracker.Record(true, latency)
		p.publishBreakerState(name, brk, tracker)
		return
	}

	class, _ := classify(err)
	switch class {
	case classCanceled:
		// Client-side event: free the probe slot, record nothing.
		brk.Release(permit)
	case classRateLimited:
		tracker.Record(false, latency)
		// Back-pressure: health sees the failure, the breaker records no
		// outcome in either direction.
		brk.Release(permit)
	default:
		brk.Record(permit, false)
		tracker.Record(false, latency)
	}
	p.publishBreakerState(name, brk, tracker)
}

// publishBreakerState mirrors breaker state into the health tracker and
// metrics.
func (p *Pipeline) publishBreakerState(name string, brk *breaker.Breaker, tracker *health.Tracker) {
	open := brk.State() == breaker.Open
	tracker.SetBreakerOpen(open)
	if p.metrics != nil {
		p.metrics.SetBreakerState(name, brk.State().String())
	}
}

// sleepCtx sleeps for d, returning false if the context expired first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorLabel(class outcomeClass) string {
	switch class {
	case classRateLimited:
		return "rate_limit"
	case classFatal:
		return "fatal"
	case classCanceled:
		return "canceled"
	default:
		return "retryable"
	}
}

func usageOf(u *providers.TokenUsage) providers.TokenUsage {
	if u == nil {
		return providers.TokenUsage{}
	}
	return *u
}
