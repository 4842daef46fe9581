package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"helios-hq/relay/pkg/providers"
)

// DispatchMetrics tracks provider dispatch outcomes.
//
// Metrics:
//   - relay_provider_requests_total{provider, model}
//   - relay_provider_latency_seconds{provider, model}
//   - relay_provider_errors_total{provider, class}
//   - relay_provider_breaker_state{provider, state}
//   - relay_tokens_total{provider, model, direction}
//   - relay_rate_limited_total{scope}
//   - relay_dispatch_last_resort_total
//   - relay_dispatch_all_breakers_open_total
//   - relay_stream_canceled_total{provider}
type DispatchMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	tokens       *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	lastResort   prometheus.Counter
	breakersOpen prometheus.Counter
	canceled     *prometheus.CounterVec
}

func newDispatchMetrics(cfg Config, registry *prometheus.Registry) *DispatchMetrics {
	dm := &DispatchMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_requests_total",
				Help:      "Successful provider requests by provider and model",
			},
			[]string{"provider", "model"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"provider", "model"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_errors_total",
				Help:      "Provider attempt errors by classification",
			},
			[]string{"provider", "class"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_breaker_state",
				Help:      "Breaker state indicator (1 for the active state)",
			},
			[]string{"provider", "state"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tokens_total",
				Help:      "Tokens processed by provider, model and direction",
			},
			[]string{"provider", "model", "direction"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rate_limited_total",
				Help:      "Gateway rate-limit denials by scope",
			},
			[]string{"scope"},
		),
		lastResort: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "dispatch_last_resort_total",
				Help:      "Requests routed with every candidate unhealthy",
			},
		),
		breakersOpen: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "dispatch_all_breakers_open_total",
				Help:      "Requests rejected with every candidate breaker open",
			},
		),
		canceled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "stream_canceled_total",
				Help:      "Streams canceled by the client",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(
		dm.requests, dm.latency, dm.errors, dm.breakerState,
		dm.tokens, dm.rateLimited, dm.lastResort, dm.breakersOpen, dm.canceled,
	)
	return dm
}

// RecordSuccess records a completed provider request with its usage.
func (dm *DispatchMetrics) RecordSuccess(provider, model string, latency time.Duration, usage providers.TokenUsage) {
	dm.requests.WithLabelValues(provider, model).Inc()
	dm.latency.WithLabelValues(provider, model).Observe(latency.Seconds())
	dm.tokens.WithLabelValues(provider, model, "input").Add(float64(usage.PromptTokens))
	dm.tokens.WithLabelValues(provider, model, "output").Add(float64(usage.CompletionTokens))
}

// RecordAttemptError records a failed attempt by classification.
func (dm *DispatchMetrics) RecordAttemptError(provider, class string) {
	dm.errors.WithLabelValues(provider, class).Inc()
}

// SetBreakerState publishes the provider's breaker state as a one-hot
// gauge set.
func (dm *DispatchMetrics) SetBreakerState(provider, state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		dm.breakerState.WithLabelValues(provider, s).Set(v)
	}
}

// RecordRateLimited records a gateway-side admission denial.
func (dm *DispatchMetrics) RecordRateLimited(scope string) {
	dm.rateLimited.WithLabelValues(scope).Inc()
}

// RecordLastResort records a routing decision with no healthy candidates.
func (dm *DispatchMetrics) RecordLastResort() {
	dm.lastResort.Inc()
}

// RecordAllBreakersOpen records a dispatch rejected entirely by breakers.
func (dm *DispatchMetrics) RecordAllBreakersOpen() {
	dm.breakersOpen.Inc()
}

// RecordCanceled records a client-canceled stream; the usage emitted so far
// still counts.
func (dm *DispatchMetrics) RecordCanceled(provider, model string, usage providers.TokenUsage) {
	dm.canceled.WithLabelValues(provider).Inc()
	dm.tokens.WithLabelValues(provider, model, "output").Add(float64(usage.CompletionTokens))
}
