// Package config defines the gateway configuration: file loading with
// environment expansion, defaults, validation, and hot reload via an
// atomically swapped snapshot.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"helios-hq/relay/pkg/proxy/middleware"
	"helios-hq/relay/pkg/routing"
	"helios-hq/relay/pkg/telemetry/logging"
	"helios-hq/relay/pkg/telemetry/tracing"
)

// Duration decodes YAML duration strings ("30s", "2m") as well as bare
// integers (nanoseconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}

	return fmt.Errorf("invalid duration value on line %d", value.Line)
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration document.
type Config struct {
	// Server configures the inbound HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Auth lists the accepted API credentials.
	Auth AuthConfig `yaml:"auth"`

	// Providers configures the upstream LLM providers.
	Providers []ProviderConfig `yaml:"providers"`

	// ModelAliases maps client-facing aliases to canonical model names.
	ModelAliases map[string]string `yaml:"model_aliases"`

	// Routing configures the rule set and default strategy.
	Routing RoutingConfig `yaml:"routing"`

	// Limits configures the token-bucket rate limiter.
	Limits LimitsConfig `yaml:"limits"`

	// Idempotency configures the replay store.
	Idempotency IdempotencyConfig `yaml:"idempotency"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Maintenance configures the background schedules.
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is "host:port". Default: "127.0.0.1:8080".
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading the request headers and body.
	// Default: 30s
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes. Streaming responses need this
	// generous. Default: 10m
	WriteTimeout Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive idle connections. Default: 120s
	IdleTimeout Duration `yaml:"idle_timeout"`

	// RequestTimeout is the whole-request deadline applied by middleware.
	// Default: 5m
	RequestTimeout Duration `yaml:"request_timeout"`

	// ShutdownTimeout bounds the drain on shutdown. Default: 30s
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request header size. Default: 1 MiB
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// AuthConfig lists accepted credentials.
type AuthConfig struct {
	// Credentials maps API keys to principals and tenants.
	Credentials []middleware.Credential `yaml:"credentials"`
}

// ProviderConfig is the wire form of one provider descriptor.
type ProviderConfig struct {
	Name          string         `yaml:"name"`
	Kind          string         `yaml:"kind"`
	BaseURL       string         `yaml:"base_url"`
	Auth          ProviderAuth   `yaml:"auth"`
	Models        []string       `yaml:"models"`
	Capabilities  []string       `yaml:"capabilities"`
	Pricing       PricingConfig  `yaml:"pricing"`
	Weight        float64        `yaml:"weight"`
	Region        string         `yaml:"region"`
	Tags          []string       `yaml:"tags"`
	Enabled       *bool          `yaml:"enabled"`
	Timeouts      TimeoutConfig  `yaml:"timeouts"`
	Retry         RetryConfig    `yaml:"retry"`
	Breaker       BreakerConfig  `yaml:"breaker"`
	LatencyTarget Duration       `yaml:"latency_target"`
	Pool          ConnectionPool `yaml:"pool"`
}

// ProviderAuth configures credential injection for one provider.
type ProviderAuth struct {
	Kind            string `yaml:"kind"` // bearer, header, sigv4, none
	Token           string `yaml:"token"`
	Header          string `yaml:"header"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Region          string `yaml:"region"`
}

// PricingConfig holds per-million-token rates.
type PricingConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// TimeoutConfig holds the provider timeout knobs.
type TimeoutConfig struct {
	// Connect bounds connection establishment. Default: 10s
	Connect Duration `yaml:"connect"`

	// Total bounds the whole upstream request. Default: 60s
	Total Duration `yaml:"total"`
}

// RetryConfig holds the provider retry knobs.
type RetryConfig struct {
	// MaxRetries is retries after the first attempt. Default: 2
	MaxRetries *int `yaml:"max_retries"`

	// BaseBackoff is the first retry delay. Default: 100ms
	BaseBackoff Duration `yaml:"base_backoff"`

	// MaxBackoff caps the delay. Default: 10s
	MaxBackoff Duration `yaml:"max_backoff"`

	// Multiplier grows the delay per attempt. Default: 2
	Multiplier float64 `yaml:"multiplier"`

	// Jitter is the symmetric random fraction. Default: 0.25
	Jitter float64 `yaml:"jitter"`
}

// BreakerConfig holds the provider breaker knobs.
type BreakerConfig struct {
	// FailureThreshold opens the breaker. Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold closes a half-open breaker. Default: 3
	SuccessThreshold int `yaml:"success_threshold"`

	// HalfOpenMax bounds concurrent half-open probes. Default: 3
	HalfOpenMax int `yaml:"half_open_max"`

	// Cooldown is the open interval. Default: 60s
	Cooldown Duration `yaml:"cooldown"`

	// MaxCooldown caps the grown cooldown. Default: 10m
	MaxCooldown Duration `yaml:"max_cooldown"`
}

// ConnectionPool sizes a provider's HTTP connection pool.
type ConnectionPool struct {
	// MaxIdleConns caps pooled connections. Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost caps pooled connections per host. Default: 100
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout expires pooled connections. Default: 90s
	IdleConnTimeout Duration `yaml:"idle_conn_timeout"`
}

// RoutingConfig configures the routing engine.
type RoutingConfig struct {
	// DefaultStrategy applies when no rule matches.
	// Default: "round-robin"
	DefaultStrategy string `yaml:"default_strategy"`

	// Rules are walked in order; the first match wins.
	Rules []routing.Rule `yaml:"rules"`
}

// LimitsConfig configures the rate limiter scopes.
type LimitsConfig struct {
	// APIKey, Tenant and Route configure each scope's bucket. Zero
	// disables the scope.
	APIKey ScopeLimit `yaml:"api_key"`
	Tenant ScopeLimit `yaml:"tenant"`
	Route  ScopeLimit `yaml:"route"`

	// SweepIdle is how long a bucket may sit idle before GC.
	// Default: 30m
	SweepIdle Duration `yaml:"sweep_idle"`
}

// ScopeLimit is one scope's bucket parameters.
type ScopeLimit struct {
	// Capacity is the burst size.
	Capacity float64 `yaml:"capacity"`

	// RefillPerSec is the sustained rate.
	RefillPerSec float64 `yaml:"refill_per_sec"`
}

// IdempotencyConfig configures the replay store.
type IdempotencyConfig struct {
	// Backend is "memory" or "sqlite". Default: "memory".
	Backend string `yaml:"backend"`

	// Path is the sqlite database path when Backend is "sqlite".
	Path string `yaml:"path"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	// Logging configures the structured logger.
	Logging logging.Config `yaml:"logging"`

	// Metrics configures the Prometheus namespace.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OTLP trace export.
	Tracing tracing.Config `yaml:"tracing"`
}

// MetricsConfig names the Prometheus metric namespace.
type MetricsConfig struct {
	// Namespace prefixes every metric. Default: "relay".
	Namespace string `yaml:"namespace"`
}

// MaintenanceConfig holds the cron schedules for background work.
type MaintenanceConfig struct {
	// ProbeSchedule runs provider health probes. Default: "@every 30s".
	ProbeSchedule string `yaml:"probe_schedule"`

	// SweepSchedule runs bucket GC and idempotency expiry.
	// Default: "@every 5m".
	SweepSchedule string `yaml:"sweep_schedule"`
}
