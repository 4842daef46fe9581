package config

import (
	"helios-hq/relay/pkg/limits/ratelimit"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/routing"
)

// Descriptors converts the provider wire configs into immutable runtime
// descriptors.
func (c *Config) Descriptors() []*providers.Descriptor {
	out := make([]*providers.Descriptor, 0, len(c.Providers))
	for i := range c.Providers {
		out = append(out, c.Providers[i].Descriptor())
	}
	return out
}

// Descriptor converts one provider wire config.
func (p *ProviderConfig) Descriptor() *providers.Descriptor {
	caps := make([]providers.Capability, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps = append(caps, providers.Capability(c))
	}

	authKind := providers.AuthKind(p.Auth.Kind)
	if p.Auth.Kind == "" {
		authKind = providers.AuthNone
	}

	return &providers.Descriptor{
		Name:    p.Name,
		Kind:    providers.Kind(p.Kind),
		BaseURL: p.BaseURL,
		Auth: providers.AuthConfig{
			Kind:            authKind,
			Token:           p.Auth.Token,
			Header:          p.Auth.Header,
			Prefix:          p.Auth.Prefix,
			AccessKeyID:     p.Auth.AccessKeyID,
			SecretAccessKey: p.Auth.SecretAccessKey,
			SessionToken:    p.Auth.SessionToken,
			Region:          p.Auth.Region,
		},
		Models:       append([]string(nil), p.Models...),
		Capabilities: caps,
		Pricing: providers.Pricing{
			InputPerMillion:  p.Pricing.InputPerMillion,
			OutputPerMillion: p.Pricing.OutputPerMillion,
		},
		Weight:  p.Weight,
		Region:  p.Region,
		Tags:    append([]string(nil), p.Tags...),
		Enabled: p.Enabled == nil || *p.Enabled,
		Timeouts: providers.TimeoutPolicy{
			Connect: p.Timeouts.Connect.Std(),
			Total:   p.Timeouts.Total.Std(),
		},
		Retry: providers.RetryPolicy{
			MaxRetries:  derefInt(p.Retry.MaxRetries, DefaultMaxRetries),
			BaseBackoff: p.Retry.BaseBackoff.Std(),
			MaxBackoff:  p.Retry.MaxBackoff.Std(),
			Multiplier:  p.Retry.Multiplier,
			Jitter:      p.Retry.Jitter,
		},
		Breaker: providers.BreakerPolicy{
			FailureThreshold: p.Breaker.FailureThreshold,
			SuccessThreshold: p.Breaker.SuccessThreshold,
			HalfOpenMax:      p.Breaker.HalfOpenMax,
			Cooldown:         p.Breaker.Cooldown.Std(),
			MaxCooldown:      p.Breaker.MaxCooldown.Std(),
		},
		LatencyTarget:       p.LatencyTarget.Std(),
		MaxIdleConns:        p.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: p.Pool.MaxIdleConnsPerHost,
		IdleConnTimeout:     p.Pool.IdleConnTimeout.Std(),
	}
}

// RateLimits converts the limits section into the limiter configuration.
func (c *Config) RateLimits() ratelimit.Config {
	limits := make(map[ratelimit.Scope]ratelimit.Limit)
	for scope, sl := range map[ratelimit.Scope]ScopeLimit{
		ratelimit.ScopeAPIKey: c.Limits.APIKey,
		ratelimit.ScopeTenant: c.Limits.Tenant,
		ratelimit.ScopeRoute:  c.Limits.Route,
	} {
		if sl.Capacity > 0 && sl.RefillPerSec > 0 {
			limits[scope] = ratelimit.Limit{Capacity: sl.Capacity, RefillPerSec: sl.RefillPerSec}
		}
	}
	return ratelimit.Config{Limits: limits}
}

// RoutingConfig converts the routing section into the engine configuration.
func (c *Config) RoutingConfig() routing.Config {
	return routing.Config{
		DefaultStrategy: c.Routing.DefaultStrategy,
		Rules:           c.Routing.Rules,
	}
}

func derefInt(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
