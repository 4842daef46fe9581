package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"helios-hq/relay/pkg/telemetry/logging"
	"helios-hq/relay/pkg/telemetry/metrics"
)

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards flushes so SSE streaming works through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Logging writes one access log line per request, attaches a
// request-scoped logger to the context, and feeds the request metrics.
func Logging(m *metrics.RequestMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := GetRequestID(r.Context())

			logger := slog.Default().With("request_id", requestID)
			ctx := logging.WithLogger(r.Context(), logger)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			if m != nil {
				m.IncInflight()
				defer m.DecInflight()
			}

			next.ServeHTTP(recorder, r.WithContext(ctx))

			elapsed := time.Since(start)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration_ms", elapsed.Milliseconds(),
			)
			if m != nil {
				m.Observe(r.URL.Path, strconv.Itoa(recorder.status), elapsed)
			}
		})
	}
}
