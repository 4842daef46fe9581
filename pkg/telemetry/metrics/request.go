package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks the inbound HTTP surface.
//
// Metrics:
//   - relay_requests_total{endpoint, status}
//   - relay_request_duration_seconds{endpoint}
//   - relay_requests_inflight
type RequestMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newRequestMetrics(cfg Config, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total inbound requests by endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Inbound request duration in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"endpoint"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_inflight",
				Help:      "Inbound requests currently being served",
			},
		),
	}

	registry.MustRegister(rm.total, rm.duration, rm.inflight)
	return rm
}

// Observe records one finished request.
func (rm *RequestMetrics) Observe(endpoint, status string, elapsed time.Duration) {
	rm.total.WithLabelValues(endpoint, status).Inc()
	rm.duration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// IncInflight marks a request entering the server.
func (rm *RequestMetrics) IncInflight() {
	rm.inflight.Inc()
}

// DecInflight marks a request leaving the server.
func (rm *RequestMetrics) DecInflight() {
	rm.inflight.Dec()
}
