package health

import (
	"math/rand"
	"sort"
	"testing"
	"time"
)

func TestPSquare_ConvergesOnUniform(t *testing.T) {
	tests := []struct {
		name     string
		quantile float64
	}{
		{name: "p50", quantile: 0.50},
		{name: "p95", quantile: 0.95},
		{name: "p99", quantile: 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newPSquare(tt.quantile)
			rng := rand.New(rand.NewSource(42))

			values := make([]float64, 0, 5000)
			for i := 0; i < 5000; i++ {
				v := rng.Float64() * 100
				values = append(values, v)
				e.Observe(v)
			}

			sort.Float64s(values)
			exact := values[int(tt.quantile*float64(len(values)))]

			got := e.Value()
			// P² is an estimate; 5% absolute tolerance on a [0,100) stream.
			if got < exact-5 || got > exact+5 {
				t.Fatalf("Value() = %.2f, exact %s = %.2f", got, tt.name, exact)
			}
		})
	}
}

func TestPSquare_SmallSamples(t *testing.T) {
	e := newPSquare(0.95)
	if e.Value() != 0 {
		t.Fatal("Value() != 0 before any observation")
	}

	e.Observe(3)
	e.Observe(1)
	e.Observe(2)

	got := e.Value()
	if got < 1 || got > 3 {
		t.Fatalf("Value() = %.2f with 3 observations, want within [1, 3]", got)
	}
}

func TestTracker_StartsUnknown(t *testing.T) {
	tr := NewTracker(2 * time.Second)

	snap := tr.Snapshot()
	if snap.Status != StatusUnknown {
		t.Fatalf("Status = %v on empty tracker, want unknown", snap.Status)
	}
}

func TestTracker_HealthyUnderGoodTraffic(t *testing.T) {
	tr := NewTracker(2 * time.Second)

	for i := 0; i < 100; i++ {
		tr.Record(true, 200*time.Millisecond)
	}

	snap := tr.Snapshot()
	if snap.Status != StatusHealthy {
		t.Fatalf("Status = %v, want healthy (rate=%.2f p95=%v)", snap.Status, snap.SuccessRate, snap.P95)
	}
	if snap.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %.2f, want 1.0", snap.SuccessRate)
	}
}

func TestTracker_StatusThresholds(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		latency   time.Duration
		want      Status
	}{
		{name: "all good", successes: 100, failures: 0, latency: 500 * time.Millisecond, want: StatusHealthy},
		{name: "rate degraded", successes: 95, failures: 5, latency: 500 * time.Millisecond, want: StatusDegraded},
		{name: "rate unhealthy", successes: 80, failures: 20, latency: 500 * time.Millisecond, want: StatusUnhealthy},
		{name: "latency degraded", successes: 100, failures: 0, latency: 5 * time.Second, want: StatusDegraded},
		{name: "latency unhealthy", successes: 100, failures: 0, latency: 15 * time.Second, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(2 * time.Second)

			// Interleave so the rate is stable across the window.
			n := tt.successes + tt.failures
			failEvery := n + 1
			if tt.failures > 0 {
				failEvery = n / tt.failures
			}
			for i := 0; i < n; i++ {
				tr.Record(i%failEvery != failEvery-1, tt.latency)
			}

			snap := tr.Snapshot()
			if snap.Status != tt.want {
				t.Fatalf("Status = %v, want %v (rate=%.2f p95=%v)",
					snap.Status, tt.want, snap.SuccessRate, snap.P95)
			}
		})
	}
}

func TestTracker_BreakerOpenForcesUnhealthy(t *testing.T) {
	tr := NewTracker(2 * time.Second)
	for i := 0; i < 50; i++ {
		tr.Record(true, 100*time.Millisecond)
	}

	tr.SetBreakerOpen(true)
	if got := tr.Snapshot().Status; got != StatusUnhealthy {
		t.Fatalf("Status = %v with breaker open, want unhealthy", got)
	}

	tr.SetBreakerOpen(false)
	if got := tr.Snapshot().Status; got != StatusHealthy {
		t.Fatalf("Status = %v after breaker closed, want healthy", got)
	}
}

func TestTracker_WindowRolls(t *testing.T) {
	tr := NewTracker(2 * time.Second)

	// Fill the window with failures, then push them out with successes.
	for i := 0; i < defaultWindowSize; i++ {
		tr.Record(false, 100*time.Millisecond)
	}
	if got := tr.Snapshot().Status; got != StatusUnhealthy {
		t.Fatalf("Status = %v after all-failure window, want unhealthy", got)
	}

	for i := 0; i < defaultWindowSize; i++ {
		tr.Record(true, 100*time.Millisecond)
	}

	snap := tr.Snapshot()
	if snap.SuccessRate != 1.0 {
		t.Fatalf("SuccessRate = %.2f after full rollover, want 1.0", snap.SuccessRate)
	}
}

func TestTracker_Inflight(t *testing.T) {
	tr := NewTracker(2 * time.Second)

	tr.IncInflight()
	tr.IncInflight()
	tr.DecInflight()

	if got := tr.Snapshot().Inflight; got != 1 {
		t.Fatalf("Inflight = %d, want 1", got)
	}
}
