// Package providerfactory builds Provider instances from descriptors,
// selecting the codec implementation for each kind. Kinds are a closed
// set; adding one is a code change here and in the codec packages.
package providerfactory

import (
	"fmt"

	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/providers/anthropic"
	"helios-hq/relay/pkg/providers/bedrock"
	"helios-hq/relay/pkg/providers/google"
	"helios-hq/relay/pkg/providers/ollama"
	"helios-hq/relay/pkg/providers/openai"
)

// New builds a provider for one descriptor.
func New(desc *providers.Descriptor) (providers.Provider, error) {
	switch desc.Kind {
	case providers.KindOpenAI, providers.KindVLLM, providers.KindGeneric:
		// vLLM and unknown OpenAI-compatible servers speak the same
		// protocol; only endpoint and auth differ, and those live in the
		// descriptor.
		return openai.New(desc), nil
	case providers.KindAnthropic:
		return anthropic.New(desc), nil
	case providers.KindGoogle:
		return google.New(desc), nil
	case providers.KindBedrock:
		return bedrock.New(desc), nil
	case providers.KindOllama:
		return ollama.New(desc), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", desc.Kind)
	}
}

// BuildSnapshot builds every provider and assembles a registry snapshot.
func BuildSnapshot(descs []*providers.Descriptor, aliases map[string]string) (*providers.Snapshot, error) {
	built := make(map[string]providers.Provider, len(descs))
	for _, desc := range descs {
		p, err := New(desc)
		if err != nil {
			for _, existing := range built {
				existing.Close()
			}
			return nil, fmt.Errorf("provider %q: %w", desc.Name, err)
		}
		built[desc.Name] = p
	}
	return providers.NewSnapshot(built, providers.NewAliasTable(aliases)), nil
}
