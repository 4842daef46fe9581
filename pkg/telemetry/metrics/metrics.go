// Package metrics defines the Prometheus metric families exported by the
// gateway: request-level counters and latencies, per-provider dispatch
// outcomes, breaker state and rate-limit denials.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the metric naming configuration.
type Config struct {
	// Namespace prefixes every metric name. Default: "relay".
	Namespace string

	// DurationBuckets are the histogram buckets in seconds.
	DurationBuckets []float64
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "relay"
	}
	if len(c.DurationBuckets) == 0 {
		c.DurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}
	return c
}

// Metrics bundles the registry and all metric families.
type Metrics struct {
	registry *prometheus.Registry

	// Request is the HTTP-surface metric set.
	Request *RequestMetrics

	// Dispatch is the provider-dispatch metric set.
	Dispatch *DispatchMetrics
}

// New creates and registers every metric family on a fresh registry.
func New(cfg Config) *Metrics {
	cfg = cfg.withDefaults()
	registry := prometheus.NewRegistry()

	return &Metrics{
		registry: registry,
		Request:  newRequestMetrics(cfg, registry),
		Dispatch: newDispatchMetrics(cfg, registry),
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
