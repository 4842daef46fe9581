package handlers

import (
	"net/http"
	"time"

	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy"
	"helios-hq/relay/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models from the current registry snapshot.
type ModelsHandler struct {
	registry *providers.Registry

	// started stamps the models' created field; OpenAI clients expect a
	// stable value.
	started int64
}

// NewModelsHandler creates the handler.
func NewModelsHandler(registry *providers.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry, started: time.Now().Unix()}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Current()

	// Attribute each model to the first provider serving it, in
	// deterministic name order.
	owners := make(map[string]string)
	for _, name := range snap.Names() {
		desc, _ := snap.Descriptor(name)
		if !desc.Enabled {
			continue
		}
		for _, model := range desc.Models {
			if _, ok := owners[model]; !ok {
				owners[model] = name
			}
		}
	}

	resp := types.ModelsResponse{Object: "list"}
	for _, model := range snap.Models() {
		resp.Data = append(resp.Data, types.ModelInfo{
			ID:      model,
			Object:  "model",
			Created: h.started,
			OwnedBy: owners[model],
		})
	}
	if resp.Data == nil {
		resp.Data = []types.ModelInfo{}
	}

	proxy.WriteJSONResponse(w, http.StatusOK, resp)
}
