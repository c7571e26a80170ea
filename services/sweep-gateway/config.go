package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// APIKeyConfig describes a single API key + secret pair accepted by the
// gateway.
type APIKeyConfig struct {
	Key    string `toml:"Key" json:"key"`
	Secret string `toml:"Secret" json:"secret"`
}

// RateLimitConfig controls the per-client budget of a route class.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Config captures runtime configuration for the sweep gateway service.
type Config struct {
	ListenAddress string                     `toml:"ListenAddress"`
	DatabasePath  string                     `toml:"DatabasePath"`
	Environment   string                     `toml:"Environment"`
	LogLevel      string                     `toml:"LogLevel"`
	TimestampSkew duration                   `toml:"TimestampSkew"`
	NonceTTL      duration                   `toml:"NonceTTL"`
	NonceCapacity int                        `toml:"NonceCapacity"`
	AdminAddress  string                     `toml:"AdminAddress"`
	BaseReserve   string                     `toml:"BaseReserve"`
	APIKeys       []APIKeyConfig             `toml:"ApiKeys"`
	RateLimits    map[string]RateLimitConfig `toml:"RateLimits"`
	LogRequests   bool                       `toml:"LogRequests"`
}

// duration lets TOML carry values like "2m" while keeping time.Duration in
// code.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// LoadConfig reads the TOML file at path (when present) and applies
// environment overrides. A missing path yields a default configuration so the
// service can boot from environment variables alone.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8084",
		DatabasePath:  "sweep-gateway.db",
		Environment:   "dev",
		LogLevel:      "info",
		TimestampSkew: duration{2 * time.Minute},
		NonceCapacity: 1024,
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_DB_PATH")); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_ADMIN")); v != "" {
		cfg.AdminAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_BASE_RESERVE")); v != "" {
		cfg.BaseReserve = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_TIMESTAMP_SKEW")); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SWEEP_GATEWAY_TIMESTAMP_SKEW: %w", err)
		}
		cfg.TimestampSkew = duration{dur}
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_NONCE_TTL")); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SWEEP_GATEWAY_NONCE_TTL: %w", err)
		}
		cfg.NonceTTL = duration{dur}
	}
	// API keys as a JSON array: [{"key":"...","secret":"..."}, ...]
	if v := strings.TrimSpace(os.Getenv("SWEEP_GATEWAY_API_KEYS")); v != "" {
		var entries []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &entries); err != nil {
			return fmt.Errorf("parse SWEEP_GATEWAY_API_KEYS: %w", err)
		}
		cfg.APIKeys = entries
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.TimestampSkew.Duration <= 0 {
		return errors.New("timestamp skew must be positive")
	}
	if cfg.NonceTTL.Duration == 0 {
		cfg.NonceTTL = duration{2 * cfg.TimestampSkew.Duration}
	}
	if cfg.NonceTTL.Duration < cfg.TimestampSkew.Duration {
		cfg.NonceTTL = cfg.TimestampSkew
	}
	if len(cfg.APIKeys) == 0 {
		return errors.New("at least one API key is required")
	}
	for i, entry := range cfg.APIKeys {
		if strings.TrimSpace(entry.Key) == "" || strings.TrimSpace(entry.Secret) == "" {
			return fmt.Errorf("api key entry %d must include key and secret", i)
		}
	}
	if cfg.AdminAddress != "" {
		if _, err := parseAddress(cfg.AdminAddress); err != nil {
			return fmt.Errorf("invalid AdminAddress: %w", err)
		}
	}
	if cfg.BaseReserve != "" {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(cfg.BaseReserve), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("invalid BaseReserve %q", cfg.BaseReserve)
		}
	}
	if cfg.BaseReserve != "" && cfg.AdminAddress == "" {
		return errors.New("BaseReserve bootstrap requires AdminAddress")
	}
	return nil
}

func (c Config) secrets() map[string]string {
	out := make(map[string]string, len(c.APIKeys))
	for _, entry := range c.APIKeys {
		out[entry.Key] = entry.Secret
	}
	return out
}

func (c Config) baseReserveAmount() *big.Int {
	if c.BaseReserve == "" {
		return nil
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(c.BaseReserve), 10)
	if !ok {
		return nil
	}
	return amount
}
