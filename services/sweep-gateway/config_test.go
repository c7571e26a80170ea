package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
ListenAddress = ":9000"
DatabasePath = "/tmp/sweepgw.db"
Environment = "staging"
TimestampSkew = "90s"
AdminAddress = "`+strings.Repeat("0e", 20)+`"
BaseReserve = "1000000000"

[[ApiKeys]]
Key = "ops"
Secret = "secret"

[RateLimits.sweep]
RequestsPerMinute = 60.0
Burst = 10
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9000" || cfg.Environment != "staging" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.TimestampSkew.Duration != 90*time.Second {
		t.Fatalf("unexpected skew: %v", cfg.TimestampSkew.Duration)
	}
	if cfg.NonceTTL.Duration != 3*time.Minute {
		t.Fatalf("nonce TTL should default to twice the skew, got %v", cfg.NonceTTL.Duration)
	}
	if len(cfg.APIKeys) != 1 || cfg.APIKeys[0].Key != "ops" {
		t.Fatalf("api keys did not load: %+v", cfg.APIKeys)
	}
	if limit, ok := cfg.RateLimits["sweep"]; !ok || limit.Burst != 10 {
		t.Fatalf("rate limits did not load: %+v", cfg.RateLimits)
	}
	if cfg.baseReserveAmount().Int64() != 1_000_000_000 {
		t.Fatalf("base reserve did not parse: %v", cfg.baseReserveAmount())
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SWEEP_GATEWAY_LISTEN", ":9100")
	t.Setenv("SWEEP_GATEWAY_API_KEYS", `[{"key":"env","secret":"override"}]`)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9100" {
		t.Fatalf("env override not applied: %s", cfg.ListenAddress)
	}
	secrets := cfg.secrets()
	if secrets["env"] != "override" {
		t.Fatalf("env api key not applied: %v", secrets)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("SWEEP_GATEWAY_API_KEYS", "")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("missing api keys must fail")
	}

	t.Setenv("SWEEP_GATEWAY_API_KEYS", `[{"key":"k","secret":"s"}]`)
	t.Setenv("SWEEP_GATEWAY_BASE_RESERVE", "1000")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("base reserve without admin must fail")
	}

	t.Setenv("SWEEP_GATEWAY_ADMIN", "not-hex")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("invalid admin address must fail")
	}

	t.Setenv("SWEEP_GATEWAY_ADMIN", strings.Repeat("0e", 20))
	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("valid bootstrap config rejected: %v", err)
	}
}
