package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"helios-hq/relay/pkg/limits/ratelimit"
	"helios-hq/relay/pkg/providers"
)

func yamlUnmarshal(doc string, out interface{}) error {
	return yaml.Unmarshal([]byte(doc), out)
}

const testConfig = `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: 15s

auth:
  credentials:
    - key: sk-local-test
      principal_id: dev
      tenant_id: local

providers:
  - name: openai-main
    kind: openai-compatible
    base_url: https://api.openai.com/v1
    auth:
      kind: bearer
      token: ${TEST_OPENAI_KEY}
    models: [gpt-4, gpt-4-mini]
    capabilities: [streaming, tools, system-msg]
    pricing:
      input_per_million: 30.0
      output_per_million: 60.0
    region: us-east
    timeouts:
      connect: 5s
      total: 90s

  - name: claude
    kind: anthropic
    base_url: https://api.anthropic.com/v1
    auth:
      kind: header
      header: x-api-key
      token: test-anthropic-key
    models: [claude-3-opus]
    capabilities: [streaming, tools, vision, system-msg]
    weight: 2

model_aliases:
  gpt-4-latest: gpt-4

routing:
  default_strategy: least-latency
  rules:
    - name: local-tenant-cheap
      when:
        tenant_in: [local]
      strategy: lowest-cost

limits:
  api_key:
    capacity: 10
    refill_per_sec: 0.1667
  tenant:
    capacity: 100
    refill_per_sec: 5

idempotency:
  backend: memory
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	os.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	cfg, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout.Std() != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout.Std())
	}
	// Unset fields got defaults.
	if cfg.Server.ShutdownTimeout.Std() != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want default", cfg.Server.ShutdownTimeout.Std())
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("Providers = %d, want 2", len(cfg.Providers))
	}

	// ${VAR} expansion happened before parsing.
	if cfg.Providers[0].Auth.Token != "sk-from-env" {
		t.Errorf("Token = %q, want value from environment", cfg.Providers[0].Auth.Token)
	}

	// Provider defaults.
	p := cfg.Providers[0]
	if p.Timeouts.Connect.Std() != 5*time.Second || p.Timeouts.Total.Std() != 90*time.Second {
		t.Errorf("Timeouts = %+v, want explicit values kept", p.Timeouts)
	}
	if *p.Retry.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default", *p.Retry.MaxRetries)
	}
	if p.Breaker.FailureThreshold != DefaultFailureThreshold {
		t.Errorf("FailureThreshold = %d, want default", p.Breaker.FailureThreshold)
	}
}

func TestLoad_Descriptors(t *testing.T) {
	os.Setenv("TEST_OPENAI_KEY", "k")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	cfg, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	descs := cfg.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("Descriptors() = %d, want 2", len(descs))
	}

	openai := descs[0]
	if openai.Kind != providers.KindOpenAI {
		t.Errorf("Kind = %q", openai.Kind)
	}
	if !openai.HasCapability(providers.CapStreaming) {
		t.Error("streaming capability lost in conversion")
	}
	if openai.Pricing.InputPerMillion != 30.0 {
		t.Errorf("Pricing = %+v", openai.Pricing)
	}
	if !openai.Enabled {
		t.Error("Enabled default not applied")
	}

	claude := descs[1]
	if claude.Auth.Kind != providers.AuthHeader || claude.Auth.Header != "x-api-key" {
		t.Errorf("Auth = %+v, want header auth", claude.Auth)
	}
	if claude.Weight != 2 {
		t.Errorf("Weight = %v, want 2", claude.Weight)
	}
}

func TestLoad_RateLimits(t *testing.T) {
	os.Setenv("TEST_OPENAI_KEY", "k")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	cfg, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rl := cfg.RateLimits()
	if _, ok := rl.Limits[ratelimit.ScopeAPIKey]; !ok {
		t.Error("api-key scope missing")
	}
	if _, ok := rl.Limits[ratelimit.ScopeRoute]; ok {
		t.Error("route scope present though unconfigured")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() succeeded on a missing file")
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "no providers",
			mutate: func(c *Config) { c.Providers = nil },
		},
		{
			name:   "bad kind",
			mutate: func(c *Config) { c.Providers[0].Kind = "carrier-pigeon" },
		},
		{
			name:   "bad url",
			mutate: func(c *Config) { c.Providers[0].BaseURL = "not a url" },
		},
		{
			name:   "no models",
			mutate: func(c *Config) { c.Providers[0].Models = nil },
		},
		{
			name:   "duplicate name",
			mutate: func(c *Config) { c.Providers[1].Name = c.Providers[0].Name },
		},
		{
			name:   "unknown strategy",
			mutate: func(c *Config) { c.Routing.DefaultStrategy = "dice-roll" },
		},
		{
			name: "rule includes unknown provider",
			mutate: func(c *Config) {
				c.Routing.Rules[0].Include = []string{"ghost"}
			},
		},
		{
			name: "bearer without token",
			mutate: func(c *Config) {
				c.Providers[0].Auth = ProviderAuth{Kind: "bearer"}
			},
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Idempotency = IdempotencyConfig{Backend: "sqlite"}
			},
		},
		{
			name: "bedrock with streaming",
			mutate: func(c *Config) {
				c.Providers[0].Kind = "bedrock"
				c.Providers[0].Auth = ProviderAuth{
					Kind: "sigv4", AccessKeyID: "a", SecretAccessKey: "s", Region: "us-east-1",
				}
				c.Providers[0].Capabilities = []string{"streaming"}
			},
		},
	}

	os.Setenv("TEST_OPENAI_KEY", "k")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, testConfig))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("Validate() passed, want error")
			}
		})
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	var cfg struct {
		D Duration `yaml:"d"`
	}

	if err := yamlUnmarshal("d: 250ms", &cfg); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if cfg.D.Std() != 250*time.Millisecond {
		t.Errorf("D = %v, want 250ms", cfg.D.Std())
	}

	if err := yamlUnmarshal("d: bogus", &cfg); err == nil {
		t.Fatal("unmarshal accepted a bogus duration")
	}
}
