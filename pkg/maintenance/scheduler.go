// Package maintenance runs the background schedules: provider health
// probes, rate-limit bucket GC and idempotency expiry sweeps.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"helios-hq/relay/pkg/dispatch"
	"helios-hq/relay/pkg/idempotency"
	"helios-hq/relay/pkg/limits/ratelimit"
	"helios-hq/relay/pkg/providers"
)

// Config holds the cron expressions.
type Config struct {
	// ProbeSchedule runs provider probes (cron or @every syntax).
	ProbeSchedule string

	// SweepSchedule runs bucket GC and idempotency expiry.
	SweepSchedule string

	// SweepIdle is the bucket idle threshold for GC.
	SweepIdle time.Duration
}

// Scheduler wires the maintenance jobs onto a cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// New builds the scheduler. Any component may be nil to skip its job.
func New(cfg Config, registry *providers.Registry, runtime *dispatch.Runtime, limiter *ratelimit.Limiter, idem idempotency.Store) (*Scheduler, error) {
	c := cron.New()

	if cfg.ProbeSchedule != "" && registry != nil && runtime != nil {
		_, err := c.AddFunc(cfg.ProbeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			runtime.RunProbes(ctx, registry.Current())
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.SweepSchedule != "" {
		_, err := c.AddFunc(cfg.SweepSchedule, func() {
			if limiter != nil {
				if removed := limiter.Sweep(cfg.SweepIdle); removed > 0 {
					slog.Debug("swept idle rate-limit buckets", "removed", removed)
				}
			}
			if idem != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if removed, err := idem.Sweep(ctx, idempotency.DefaultWindow); err != nil {
					slog.Warn("idempotency sweep failed", "error", err)
				} else if removed > 0 {
					slog.Debug("swept expired idempotency entries", "removed", removed)
				}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return &Scheduler{cron: c}, nil
}

// Start begins running the schedules in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedules and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		slog.Warn("maintenance jobs did not stop in time")
	}
}
