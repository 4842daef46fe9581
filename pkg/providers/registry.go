package providers

import (
	"sort"
	"sync/atomic"
)

// AliasTable maps client-facing model aliases to canonical model names.
// Resolution happens once, before routing and encoding.
type AliasTable struct {
	aliases map[string]string
}

// NewAliasTable builds an alias table. A nil map yields the identity table.
func NewAliasTable(aliases map[string]string) *AliasTable {
	if aliases == nil {
		aliases = make(map[string]string)
	}
	return &AliasTable{aliases: aliases}
}

// Resolve returns the canonical name for model, or model itself when no
// alias is declared.
func (t *AliasTable) Resolve(model string) string {
	if canonical, ok := t.aliases[model]; ok {
		return canonical
	}
	return model
}

// Snapshot is an immutable view of the configured providers for one
// configuration generation. Readers take the current snapshot once per
// request; a reload builds a new snapshot and swaps it atomically.
type Snapshot struct {
	providers   map[string]Provider
	descriptors map[string]*Descriptor
	aliases     *AliasTable
	names       []string
}

// NewSnapshot builds a snapshot from constructed providers and the alias
// table. The maps are owned by the snapshot after the call.
func NewSnapshot(provs map[string]Provider, aliases *AliasTable) *Snapshot {
	if aliases == nil {
		aliases = NewAliasTable(nil)
	}
	descs := make(map[string]*Descriptor, len(provs))
	names := make([]string, 0, len(provs))
	for name, p := range provs {
		descs[name] = p.Descriptor()
		names = append(names, name)
	}
	sort.Strings(names)

	return &Snapshot{
		providers:   provs,
		descriptors: descs,
		aliases:     aliases,
		names:       names,
	}
}

// Provider returns the provider registered under name.
func (s *Snapshot) Provider(name string) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Descriptor returns the descriptor registered under name.
func (s *Snapshot) Descriptor(name string) (*Descriptor, bool) {
	d, ok := s.descriptors[name]
	return d, ok
}

// Names returns the provider names in deterministic order.
func (s *Snapshot) Names() []string {
	return s.names
}

// Resolve maps a requested model through the alias table.
func (s *Snapshot) Resolve(model string) string {
	return s.aliases.Resolve(model)
}

// ForModel returns the enabled descriptors whose model list contains the
// canonical model, in deterministic name order.
func (s *Snapshot) ForModel(canonical string) []*Descriptor {
	var out []*Descriptor
	for _, name := range s.names {
		d := s.descriptors[name]
		if d.Enabled && d.SupportsModel(canonical) {
			out = append(out, d)
		}
	}
	return out
}

// Models returns the union of canonical model names across enabled
// providers, sorted.
func (s *Snapshot) Models() []string {
	seen := make(map[string]bool)
	for _, name := range s.names {
		d := s.descriptors[name]
		if !d.Enabled {
			continue
		}
		for _, m := range d.Models {
			seen[m] = true
		}
	}
	models := make([]string, 0, len(seen))
	for m := range seen {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Close closes every provider in the snapshot.
func (s *Snapshot) Close() error {
	var first error
	for _, p := range s.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Registry publishes the current provider snapshot. Readers on the hot path
// load the pointer once and use that generation for the whole request.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry publishing the given initial snapshot.
func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	r.current.Store(initial)
	return r
}

// Current returns the live snapshot.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap atomically replaces the snapshot and returns the previous one so the
// caller can close its providers after in-flight requests drain.
func (r *Registry) Swap(next *Snapshot) *Snapshot {
	return r.current.Swap(next)
}
