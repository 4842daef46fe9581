package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"helios-hq/relay/pkg/providers"
)

// knownStrategies mirrors the strategies registry for validation without
// importing it (the strategies package depends on routing, not config).
var knownStrategies = map[string]bool{
	"round-robin":       true,
	"least-latency":     true,
	"least-connections": true,
	"lowest-cost":       true,
	"weighted-random":   true,
	"power-of-two":      true,
}

// Validate checks the configuration after defaults were applied.
func Validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		return fmt.Errorf("server.listen_address %q is not host:port: %w", cfg.Server.ListenAddress, err)
	}

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool)
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if err := validateProvider(p); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("provider name %q is declared twice", p.Name)
		}
		seen[p.Name] = true
	}

	if !knownStrategies[cfg.Routing.DefaultStrategy] {
		return fmt.Errorf("routing.default_strategy %q is not a known strategy", cfg.Routing.DefaultStrategy)
	}
	for _, rule := range cfg.Routing.Rules {
		if rule.Name == "" {
			return fmt.Errorf("every routing rule needs a name")
		}
		if rule.Strategy != "" && !knownStrategies[rule.Strategy] {
			return fmt.Errorf("rule %q references unknown strategy %q", rule.Name, rule.Strategy)
		}
		for _, included := range rule.Include {
			if !seen[included] {
				return fmt.Errorf("rule %q includes unknown provider %q", rule.Name, included)
			}
		}
	}

	for _, scope := range []struct {
		name  string
		limit ScopeLimit
	}{
		{"limits.api_key", cfg.Limits.APIKey},
		{"limits.tenant", cfg.Limits.Tenant},
		{"limits.route", cfg.Limits.Route},
	} {
		if (scope.limit.Capacity > 0) != (scope.limit.RefillPerSec > 0) {
			return fmt.Errorf("%s needs both capacity and refill_per_sec (or neither)", scope.name)
		}
		if scope.limit.Capacity < 0 || scope.limit.RefillPerSec < 0 {
			return fmt.Errorf("%s values must be non-negative", scope.name)
		}
	}

	switch cfg.Idempotency.Backend {
	case "memory":
	case "sqlite":
		if cfg.Idempotency.Path == "" {
			return fmt.Errorf("idempotency.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("idempotency.backend %q is not memory or sqlite", cfg.Idempotency.Backend)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, schedule := range []struct {
		name string
		expr string
	}{
		{"maintenance.probe_schedule", cfg.Maintenance.ProbeSchedule},
		{"maintenance.sweep_schedule", cfg.Maintenance.SweepSchedule},
	} {
		if _, err := parser.Parse(schedule.expr); err != nil {
			return fmt.Errorf("%s %q is not a valid cron expression: %w", schedule.name, schedule.expr, err)
		}
	}

	return nil
}

func validateProvider(p *ProviderConfig) error {
	if p.Name == "" {
		return fmt.Errorf("every provider needs a name")
	}

	kind := providers.Kind(p.Kind)
	if !kind.Valid() {
		return fmt.Errorf("provider %q: kind %q is not one of the known kinds", p.Name, p.Kind)
	}

	if p.BaseURL == "" {
		return fmt.Errorf("provider %q: base_url is required", p.Name)
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("provider %q: base_url %q is not a valid http(s) URL", p.Name, p.BaseURL)
	}

	if len(p.Models) == 0 {
		return fmt.Errorf("provider %q: at least one model is required", p.Name)
	}

	for _, c := range p.Capabilities {
		switch providers.Capability(c) {
		case providers.CapStreaming, providers.CapTools, providers.CapVision,
			providers.CapJSONMode, providers.CapSystemMsg:
		default:
			return fmt.Errorf("provider %q: unknown capability %q", p.Name, c)
		}
	}

	switch strings.ToLower(p.Auth.Kind) {
	case "", "none":
	case "bearer":
		if p.Auth.Token == "" {
			return fmt.Errorf("provider %q: bearer auth needs a token", p.Name)
		}
	case "header":
		if p.Auth.Header == "" || p.Auth.Token == "" {
			return fmt.Errorf("provider %q: header auth needs header and token", p.Name)
		}
	case "sigv4":
		if p.Auth.AccessKeyID == "" || p.Auth.SecretAccessKey == "" || p.Auth.Region == "" {
			return fmt.Errorf("provider %q: sigv4 auth needs access_key_id, secret_access_key and region", p.Name)
		}
	default:
		return fmt.Errorf("provider %q: unknown auth kind %q", p.Name, p.Auth.Kind)
	}

	if kind == providers.KindBedrock {
		for _, c := range p.Capabilities {
			if providers.Capability(c) == providers.CapStreaming {
				return fmt.Errorf("provider %q: the bedrock kind does not support streaming", p.Name)
			}
		}
	}

	if p.Weight < 0 {
		return fmt.Errorf("provider %q: weight must be non-negative", p.Name)
	}
	if p.Pricing.InputPerMillion < 0 || p.Pricing.OutputPerMillion < 0 {
		return fmt.Errorf("provider %q: pricing must be non-negative", p.Name)
	}
	if p.Retry.Jitter < 0 || p.Retry.Jitter >= 1 {
		return fmt.Errorf("provider %q: retry.jitter must be in [0, 1)", p.Name)
	}

	return nil
}
