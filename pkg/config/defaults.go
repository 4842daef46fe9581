package config

import "time"

// Default values applied to unset fields before validation.
const (
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultRequestTimeout  = 5 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	DefaultConnectTimeout = 10 * time.Second
	DefaultTotalTimeout   = 60 * time.Second

	DefaultMaxRetries  = 2
	DefaultBaseBackoff = 100 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.25

	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 3
	DefaultHalfOpenMax      = 3
	DefaultCooldown         = 60 * time.Second
	DefaultMaxCooldown      = 10 * time.Minute

	DefaultLatencyTarget = 2 * time.Second

	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 100
	DefaultIdleConnTimeout     = 90 * time.Second

	DefaultSweepIdle = 30 * time.Minute

	DefaultProbeSchedule = "@every 30s"
	DefaultSweepSchedule = "@every 5m"
)

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
	}

	if cfg.Routing.DefaultStrategy == "" {
		cfg.Routing.DefaultStrategy = "round-robin"
	}

	if cfg.Limits.SweepIdle == 0 {
		cfg.Limits.SweepIdle = Duration(DefaultSweepIdle)
	}

	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "relay"
	}

	if cfg.Maintenance.ProbeSchedule == "" {
		cfg.Maintenance.ProbeSchedule = DefaultProbeSchedule
	}
	if cfg.Maintenance.SweepSchedule == "" {
		cfg.Maintenance.SweepSchedule = DefaultSweepSchedule
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Enabled == nil {
		enabled := true
		p.Enabled = &enabled
	}
	if p.Weight == 0 {
		p.Weight = 1
	}

	if p.Timeouts.Connect == 0 {
		p.Timeouts.Connect = Duration(DefaultConnectTimeout)
	}
	if p.Timeouts.Total == 0 {
		p.Timeouts.Total = Duration(DefaultTotalTimeout)
	}

	if p.Retry.MaxRetries == nil {
		retries := DefaultMaxRetries
		p.Retry.MaxRetries = &retries
	}
	if p.Retry.BaseBackoff == 0 {
		p.Retry.BaseBackoff = Duration(DefaultBaseBackoff)
	}
	if p.Retry.MaxBackoff == 0 {
		p.Retry.MaxBackoff = Duration(DefaultMaxBackoff)
	}
	if p.Retry.Multiplier == 0 {
		p.Retry.Multiplier = DefaultMultiplier
	}
	if p.Retry.Jitter == 0 {
		p.Retry.Jitter = DefaultJitter
	}

	if p.Breaker.FailureThreshold == 0 {
		p.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if p.Breaker.SuccessThreshold == 0 {
		p.Breaker.SuccessThreshold = DefaultSuccessThreshold
	}
	if p.Breaker.HalfOpenMax == 0 {
		p.Breaker.HalfOpenMax = DefaultHalfOpenMax
	}
	if p.Breaker.Cooldown == 0 {
		p.Breaker.Cooldown = Duration(DefaultCooldown)
	}
	if p.Breaker.MaxCooldown == 0 {
		p.Breaker.MaxCooldown = Duration(DefaultMaxCooldown)
	}

	if p.LatencyTarget == 0 {
		p.LatencyTarget = Duration(DefaultLatencyTarget)
	}

	if p.Pool.MaxIdleConns == 0 {
		p.Pool.MaxIdleConns = DefaultMaxIdleConns
	}
	if p.Pool.MaxIdleConnsPerHost == 0 {
		p.Pool.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if p.Pool.IdleConnTimeout == 0 {
		p.Pool.IdleConnTimeout = Duration(DefaultIdleConnTimeout)
	}
}
