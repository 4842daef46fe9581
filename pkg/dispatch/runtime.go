// Package dispatch orchestrates a request's path through the gateway:
// rate-limit admission, routing, breaker gating, provider invocation,
// retry, failover and outcome accounting.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"helios-hq/relay/pkg/breaker"
	"helios-hq/relay/pkg/health"
	"helios-hq/relay/pkg/providers"
)

// providerState bundles the long-lived mutable state of one provider:
// breaker, health tracker and inflight counter. State survives
// configuration reloads as long as the provider keeps its name.
type providerState struct {
	breaker *breaker.Breaker
	health  *health.Tracker
}

// Runtime owns the per-provider state map and implements routing.StateView.
//
// The map itself is guarded by a mutex taken only on reload and state
// creation; per-request reads go through the map under RLock and then
// operate on lock-free structures.
type Runtime struct {
	mu    sync.RWMutex
	state map[string]*providerState

	// draining rejects new admissions during shutdown.
	draining atomic.Bool

	// active counts in-flight requests for bounded drain.
	active atomic.Int64

	// drained is signalled whenever active reaches zero.
	drained chan struct{}
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		state:   make(map[string]*providerState),
		drained: make(chan struct{}, 1),
	}
}

// SyncProviders reconciles the state map with a new registry snapshot:
// state is created for new providers and retained for surviving ones, so a
// reload does not reset breakers or health windows.
func (r *Runtime) SyncProviders(snap *providers.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*providerState, len(snap.Names()))
	for _, name := range snap.Names() {
		if st, ok := r.state[name]; ok {
			next[name] = st
			continue
		}
		desc, _ := snap.Descriptor(name)
		next[name] = &providerState{
			breaker: breaker.New(breaker.Config{
				FailureThreshold: desc.Breaker.FailureThreshold,
				SuccessThreshold: desc.Breaker.SuccessThreshold,
				HalfOpenMax:      desc.Breaker.HalfOpenMax,
				Cooldown:         desc.Breaker.Cooldown,
				MaxCooldown:      desc.Breaker.MaxCooldown,
			}),
			health: health.NewTracker(desc.LatencyTarget),
		}
	}
	r.state = next
}

// stateFor returns the provider's state, creating a default on the fly for
// names that appear between reconciles (defensive; normally SyncProviders
// has run first).
func (r *Runtime) stateFor(name string) *providerState {
	r.mu.RLock()
	st, ok := r.state[name]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.state[name]; ok {
		return st
	}
	st = &providerState{
		breaker: breaker.New(breaker.Config{}),
		health:  health.NewTracker(0),
	}
	r.state[name] = st
	return st
}

// Breaker returns the provider's circuit breaker.
func (r *Runtime) Breaker(name string) *breaker.Breaker {
	return r.stateFor(name).breaker
}

// Tracker returns the provider's health tracker.
func (r *Runtime) Tracker(name string) *health.Tracker {
	return r.stateFor(name).health
}

// Health implements routing.StateView.
func (r *Runtime) Health(name string) health.Snapshot {
	return r.stateFor(name).health.Snapshot()
}

// BreakerOpen implements routing.StateView.
func (r *Runtime) BreakerOpen(name string) (bool, time.Duration) {
	b := r.stateFor(name).breaker
	if b.State() != breaker.Open {
		return false, 0
	}
	return true, b.CooldownRemaining()
}

// Inflight implements routing.StateView.
func (r *Runtime) Inflight(name string) int64 {
	return r.stateFor(name).health.Inflight()
}

// AnyUsable reports whether at least one provider is not unhealthy; it
// backs the readiness endpoint.
func (r *Runtime) AnyUsable(snap *providers.Snapshot) bool {
	for _, name := range snap.Names() {
		if r.Health(name).Status != health.StatusUnhealthy {
			return true
		}
	}
	return false
}

// StartDraining flips the runtime into draining mode; new admissions are
// rejected with a draining error.
func (r *Runtime) StartDraining() {
	r.draining.Store(true)
}

// Draining reports whether the runtime is draining.
func (r *Runtime) Draining() bool {
	return r.draining.Load()
}

// beginRequest registers an in-flight request.
func (r *Runtime) beginRequest() {
	r.active.Add(1)
}

// endRequest releases an in-flight request and signals drain waiters when
// the count reaches zero.
func (r *Runtime) endRequest() {
	if r.active.Add(-1) == 0 {
		select {
		case r.drained <- struct{}{}:
		default:
		}
	}
}

// ActiveRequests returns the in-flight request count.
func (r *Runtime) ActiveRequests() int64 {
	return r.active.Load()
}

// Drain blocks until the active-request count reaches zero or the context
// expires. Returns the remaining count.
func (r *Runtime) Drain(ctx context.Context) int64 {
	for {
		if n := r.active.Load(); n == 0 {
			return 0
		}
		select {
		case <-r.drained:
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			n := r.active.Load()
			if n > 0 {
				slog.Warn("drain timed out with requests in flight", "active", n)
			}
			return n
		}
	}
}

// RunProbes probes every provider in the snapshot once and feeds the
// results into the health trackers. Called on a schedule by the
// maintenance scheduler.
func (r *Runtime) RunProbes(ctx context.Context, snap *providers.Snapshot) {
	var wg sync.WaitGroup
	for _, name := range snap.Names() {
		p, ok := snap.Provider(name)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string, p providers.Provider) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			result := p.Probe(probeCtx)
			r.Tracker(name).RecordProbe(result.OK, result.Latency)
			if !result.OK {
				slog.Debug("provider probe failed",
					"provider", name,
					"error", result.Err,
				)
			}
		}(name, p)
	}
	wg.Wait()
}
