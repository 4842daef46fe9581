package handlers

import (
	"net/http"

	"helios-hq/relay/pkg/dispatch"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy"
)

// LivenessHandler serves GET /health/live: 200 whenever the process is up.
type LivenessHandler struct{}

// ServeHTTP implements http.Handler.
func (h LivenessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	proxy.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessHandler serves GET /health/ready: 200 iff at least one provider
// is not unhealthy and the gateway is not draining.
type ReadinessHandler struct {
	registry *providers.Registry
	runtime  *dispatch.Runtime
}

// NewReadinessHandler creates the handler.
func NewReadinessHandler(registry *providers.Registry, runtime *dispatch.Runtime) *ReadinessHandler {
	return &ReadinessHandler{registry: registry, runtime: runtime}
}

// ServeHTTP implements http.Handler.
func (h *ReadinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.runtime.Draining() {
		proxy.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}

	snap := h.registry.Current()
	if !h.runtime.AnyUsable(snap) {
		proxy.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "no usable providers"})
		return
	}

	proxy.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}
