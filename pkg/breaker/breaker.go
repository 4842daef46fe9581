// Package breaker implements the per-provider circuit breaker gating
// upstream calls.
//
// State is a tagged integer updated by compare-and-swap; counters are
// independent atomics. No mutex is ever held across network I/O — the
// breaker only does arithmetic.
package breaker

import (
	"sync/atomic"
	"time"
)

// State is the breaker state machine position.
type State int32

// Breaker states.
const (
	// Closed admits every call.
	Closed State = iota

	// Open rejects calls until the cooldown elapses.
	Open

	// HalfOpen admits a bounded number of concurrent probes.
	HalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold opens the breaker after this many consecutive
	// failures. Default: 5
	FailureThreshold int

	// SuccessThreshold closes a half-open breaker after this many
	// consecutive successes. Default: 3
	SuccessThreshold int

	// HalfOpenMax bounds concurrent probes while half-open. Default: 3
	HalfOpenMax int

	// Cooldown is the base open interval before probing. Default: 60s
	Cooldown time.Duration

	// MaxCooldown caps the exponentially grown cooldown on repeated
	// re-opens. Default: 10m
	MaxCooldown time.Duration
}

// withDefaults fills zero fields with the documented defaults.
func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 10 * time.Minute
	}
	return c
}

// Permit is the result of Allow.
type Permit struct {
	// OK is true when the call may proceed.
	OK bool

	// RetryAfter is how long to wait when OK is false.
	RetryAfter time.Duration

	// halfOpen marks permits issued while probing; Record uses it to
	// release the probe slot.
	halfOpen bool
}

// HalfOpen reports whether this permit is a half-open probe. The dispatch
// pipeline does not retry a half-open candidate in place — it moves on.
func (p Permit) HalfOpen() bool {
	return p.halfOpen
}

// Breaker is one provider's circuit breaker.
//
// The published state transitions are totally ordered: every transition is
// a single CAS on the state word, so no observer sees them out of sequence.
type Breaker struct {
	cfg Config

	state            atomic.Int32
	consecFailures   atomic.Int32
	consecSuccesses  atomic.Int32
	openedAt         atomic.Int64 // unix nanos
	halfOpenInflight atomic.Int32
	reopens          atomic.Int32 // consecutive re-opens, grows the cooldown

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New creates a breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// NewWithClock creates a breaker with an injected clock for tests.
func NewWithClock(cfg Config, now func() time.Time) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: now}
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Snapshot is a consistent read of the breaker counters.
type Snapshot struct {
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	OpenedAt             time.Time
	HalfOpenInflight     int
}

// Snapshot returns the current counters. Fields are read individually from
// atomics; the combination is advisory, the state itself is exact.
func (b *Breaker) Snapshot() Snapshot {
	return Snapshot{
		State:                State(b.state.Load()),
		ConsecutiveFailures:  int(b.consecFailures.Load()),
		ConsecutiveSuccesses: int(b.consecSuccesses.Load()),
		OpenedAt:             time.Unix(0, b.openedAt.Load()),
		HalfOpenInflight:     int(b.halfOpenInflight.Load()),
	}
}

// cooldown returns the current cooldown, grown exponentially with each
// consecutive re-open and capped at MaxCooldown.
func (b *Breaker) cooldown() time.Duration {
	d := b.cfg.Cooldown
	for i := int32(1); i < b.reopens.Load(); i++ {
		d *= 2
		if d >= b.cfg.MaxCooldown {
			return b.cfg.MaxCooldown
		}
	}
	if d > b.cfg.MaxCooldown {
		d = b.cfg.MaxCooldown
	}
	return d
}

// Allow decides whether a call may proceed. It is atomic: concurrent
// callers racing an Open→HalfOpen transition see exactly one winner.
//
// Closed always permits. Open permits only once the cooldown has elapsed,
// transitioning to HalfOpen. HalfOpen admits at most HalfOpenMax concurrent
// probes.
func (b *Breaker) Allow() Permit {
	for {
		switch State(b.state.Load()) {
		case Closed:
			return Permit{OK: true}

		case Open:
			elapsed := b.now().Sub(time.Unix(0, b.openedAt.Load()))
			cd := b.cooldown()
			if elapsed < cd {
				return Permit{OK: false, RetryAfter: cd - elapsed}
			}
			// Cooldown elapsed: try to claim the transition to HalfOpen.
			if b.state.CompareAndSwap(int32(Open), int32(HalfOpen)) {
				b.consecSuccesses.Store(0)
				b.halfOpenInflight.Store(1)
				return Permit{OK: true, halfOpen: true}
			}
			// Lost the race; re-evaluate from the new state.

		case HalfOpen:
			n := b.halfOpenInflight.Add(1)
			if n > int32(b.cfg.HalfOpenMax) {
				b.halfOpenInflight.Add(-1)
				return Permit{OK: false, RetryAfter: b.cfg.Cooldown}
			}
			return Permit{OK: true, halfOpen: true}
		}
	}
}

// Release returns a permit without recording an outcome: a half-open probe
// slot is freed, counters and state stay untouched. Used for attempts that
// must not advance the breaker in either direction — client cancellation
// and upstream back-pressure (429).
func (b *Breaker) Release(p Permit) {
	if p.halfOpen {
		b.halfOpenInflight.Add(-1)
	}
}

// Record reports the outcome of a permitted call. The transition test runs
// on the same call: failures open the breaker at the threshold, half-open
// successes close it at the success threshold, any half-open failure
// re-opens it with the cooldown grown.
//
// Upstream rate limiting (429) must NOT be recorded here — it is
// back-pressure, not provider sickness. Client-side cancellation is not
// recorded either.
func (b *Breaker) Record(p Permit, success bool) {
	if p.halfOpen {
		b.halfOpenInflight.Add(-1)
	}

	if success {
		b.consecFailures.Store(0)
		successes := b.consecSuccesses.Add(1)

		if State(b.state.Load()) == HalfOpen && int(successes) >= b.cfg.SuccessThreshold {
			if b.state.CompareAndSwap(int32(HalfOpen), int32(Closed)) {
				b.reopens.Store(0)
				b.consecSuccesses.Store(0)
			}
		}
		return
	}

	b.consecSuccesses.Store(0)
	failures := b.consecFailures.Add(1)

	switch State(b.state.Load()) {
	case HalfOpen:
		// Any half-open failure re-opens immediately with cooldown reset.
		if b.state.CompareAndSwap(int32(HalfOpen), int32(Open)) {
			b.reopens.Add(1)
			b.openedAt.Store(b.now().UnixNano())
		}
	case Closed:
		if int(failures) >= b.cfg.FailureThreshold {
			if b.state.CompareAndSwap(int32(Closed), int32(Open)) {
				b.reopens.Add(1)
				b.openedAt.Store(b.now().UnixNano())
			}
		}
	}
}

// CooldownRemaining returns the time left before an Open breaker would
// admit a probe, without consuming a permit. Zero for any other state or
// once the cooldown has elapsed.
func (b *Breaker) CooldownRemaining() time.Duration {
	if State(b.state.Load()) != Open {
		return 0
	}
	elapsed := b.now().Sub(time.Unix(0, b.openedAt.Load()))
	if cd := b.cooldown(); elapsed < cd {
		return cd - elapsed
	}
	return 0
}

// ForceOpen opens the breaker immediately. Used by operational tooling.
func (b *Breaker) ForceOpen() {
	b.state.Store(int32(Open))
	b.openedAt.Store(b.now().UnixNano())
}

// Reset returns the breaker to Closed with all counters cleared.
func (b *Breaker) Reset() {
	b.state.Store(int32(Closed))
	b.consecFailures.Store(0)
	b.consecSuccesses.Store(0)
	b.halfOpenInflight.Store(0)
	b.reopens.Store(0)
}
