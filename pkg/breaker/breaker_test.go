package breaker

import (
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced clock for deterministic cooldown tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *testClock) *Breaker {
	return NewWithClock(Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		HalfOpenMax:      3,
		Cooldown:         60 * time.Second,
		MaxCooldown:      10 * time.Minute,
	}, clock.Now)
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := newTestBreaker(newTestClock())

	if got := b.State(); got != Closed {
		t.Fatalf("State() = %v, want Closed", got)
	}

	p := b.Allow()
	if !p.OK {
		t.Fatal("Allow() denied in Closed state")
	}
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := newTestBreaker(newTestClock())

	// N < F consecutive failures: still admitted.
	for i := 0; i < 4; i++ {
		p := b.Allow()
		if !p.OK {
			t.Fatalf("Allow() denied after %d failures, threshold is 5", i)
		}
		b.Record(p, false)
	}

	if got := b.State(); got != Closed {
		t.Fatalf("State() = %v after 4 failures, want Closed", got)
	}

	// Exactly F failures: next call denied.
	p := b.Allow()
	if !p.OK {
		t.Fatal("Allow() denied on 5th attempt")
	}
	b.Record(p, false)

	if got := b.State(); got != Open {
		t.Fatalf("State() = %v after 5 failures, want Open", got)
	}

	denied := b.Allow()
	if denied.OK {
		t.Fatal("Allow() permitted while Open with cooldown remaining")
	}
	if denied.RetryAfter <= 0 || denied.RetryAfter > 60*time.Second {
		t.Fatalf("RetryAfter = %v, want (0, 60s]", denied.RetryAfter)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(newTestClock())

	for i := 0; i < 4; i++ {
		p := b.Allow()
		b.Record(p, false)
	}

	p := b.Allow()
	b.Record(p, true)

	// The streak restarted: four more failures must not open it.
	for i := 0; i < 4; i++ {
		p := b.Allow()
		if !p.OK {
			t.Fatalf("Allow() denied after reset, iteration %d", i)
		}
		b.Record(p, false)
	}

	if got := b.State(); got != Closed {
		t.Fatalf("State() = %v, want Closed", got)
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		p := b.Allow()
		b.Record(p, false)
	}
	if got := b.State(); got != Open {
		t.Fatalf("State() = %v, want Open", got)
	}

	// Before the cooldown: denied.
	clock.Advance(30 * time.Second)
	if p := b.Allow(); p.OK {
		t.Fatal("Allow() permitted before cooldown elapsed")
	}

	// After the cooldown: exactly one transition to HalfOpen.
	clock.Advance(31 * time.Second)
	p := b.Allow()
	if !p.OK {
		t.Fatal("Allow() denied after cooldown elapsed")
	}
	if got := b.State(); got != HalfOpen {
		t.Fatalf("State() = %v, want HalfOpen", got)
	}
}

func TestBreaker_HalfOpenProbeLimit(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		p := b.Allow()
		b.Record(p, false)
	}
	clock.Advance(61 * time.Second)

	// HalfOpenMax = 3 concurrent probes.
	permits := make([]Permit, 0, 3)
	for i := 0; i < 3; i++ {
		p := b.Allow()
		if !p.OK {
			t.Fatalf("probe %d denied, want %d concurrent probes", i, 3)
		}
		permits = append(permits, p)
	}

	if p := b.Allow(); p.OK {
		t.Fatal("4th concurrent probe permitted, HalfOpenMax is 3")
	}

	// Releasing a probe frees a slot.
	b.Record(permits[0], true)
	if p := b.Allow(); !p.OK {
		t.Fatal("probe denied after a slot was released")
	}
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		p := b.Allow()
		b.Record(p, false)
	}
	clock.Advance(61 * time.Second)

	// 3 consecutive half-open successes close the breaker.
	for i := 0; i < 3; i++ {
		p := b.Allow()
		if !p.OK {
			t.Fatalf("probe %d denied", i)
		}
		b.Record(p, true)
	}

	if got := b.State(); got != Closed {
		t.Fatalf("State() = %v after 3 half-open successes, want Closed", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		p := b.Allow()
		b.Record(p, false)
	}
	clock.Advance(61 * time.Second)

	p := b.Allow()
	b.Record(p, false)

	if got := b.State(); got != Open {
		t.Fatalf("State() = %v after half-open failure, want Open", got)
	}

	// The cooldown grew: 60s is no longer enough.
	clock.Advance(61 * time.Second)
	if p := b.Allow(); p.OK {
		t.Fatal("Allow() permitted before the grown cooldown elapsed")
	}

	clock.Advance(60 * time.Second)
	if p := b.Allow(); !p.OK {
		t.Fatal("Allow() denied after the grown cooldown elapsed")
	}
}

func TestBreaker_CooldownCapped(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	// Repeatedly open and fail the probe to grow the cooldown.
	for round := 0; round < 12; round++ {
		for {
			p := b.Allow()
			if p.OK {
				b.Record(p, false)
			}
			if b.State() == Open {
				break
			}
		}
		clock.Advance(10 * time.Minute)
	}

	// Even after many re-opens, 10 minutes always suffices.
	if p := b.Allow(); !p.OK {
		t.Fatal("Allow() denied after MaxCooldown elapsed")
	}
}

func TestBreaker_ConcurrentAllow(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		p := b.Allow()
		b.Record(p, false)
	}
	clock.Advance(61 * time.Second)

	// Many goroutines race the Open→HalfOpen transition; at most
	// HalfOpenMax may win a permit.
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p := b.Allow(); p.OK {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted == 0 || granted > 3 {
		t.Fatalf("granted = %d concurrent half-open permits, want 1..3", granted)
	}
}

func TestBreaker_ReleaseRecordsNoOutcome(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		p := b.Allow()
		b.Record(p, false)
	}
	clock.Advance(61 * time.Second)

	// Two half-open successes, then a released (cancelled) probe, then a
	// third success. Release must neither close the breaker early nor
	// reset the success streak.
	for i := 0; i < 2; i++ {
		p := b.Allow()
		b.Record(p, true)
	}

	p := b.Allow()
	b.Release(p)
	if got := b.State(); got != HalfOpen {
		t.Fatalf("State() = %v after released probe, want HalfOpen", got)
	}
	if got := b.Snapshot().ConsecutiveSuccesses; got != 2 {
		t.Fatalf("consecutive successes = %d after Release, want 2 (untouched)", got)
	}

	// The released slot is free again.
	p = b.Allow()
	if !p.OK {
		t.Fatal("Allow() denied after Release freed the probe slot")
	}
	b.Record(p, true)
	if got := b.State(); got != Closed {
		t.Fatalf("State() = %v after 3rd success, want Closed", got)
	}
}

func TestBreaker_Snapshot(t *testing.T) {
	b := newTestBreaker(newTestClock())

	p := b.Allow()
	b.Record(p, false)
	p = b.Allow()
	b.Record(p, false)

	snap := b.Snapshot()
	if snap.State != Closed {
		t.Errorf("Snapshot().State = %v, want Closed", snap.State)
	}
	if snap.ConsecutiveFailures != 2 {
		t.Errorf("Snapshot().ConsecutiveFailures = %d, want 2", snap.ConsecutiveFailures)
	}
}
