// Copyright 2025 Certen Protocol
//
// Package config loads the registry's operator-facing configuration (spec
// §6): batch/sync/snapshot timing, anchoring settings per chain, the peer
// list, and store selection. Grounded on the teacher's
// pkg/config/anchor_config.go — the same YAML-plus-env-substitution loading
// idiom, scaled down to this registry's actual option set rather than the
// teacher's Ethereum/Accumulate/CometBFT-specific settings.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full loadable configuration surface named in spec §6.
type Config struct {
	RegistryID         string           `yaml:"registryId"`
	BatchSize          int              `yaml:"batchSize"`
	MaxPending         int              `yaml:"maxPending"`
	SyncIntervalMs     int64            `yaml:"syncIntervalMs"`
	SnapshotIntervalMs int64            `yaml:"snapshotIntervalMs"`
	Anchoring          AnchoringConfig  `yaml:"anchoring"`
	Peers              []string         `yaml:"peers"`
	Store              StoreConfig      `yaml:"store"`
}

// AnchoringConfig controls whether chain anchoring runs at all, and the
// per-chain connection settings for the two supported strategies.
type AnchoringConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Bitcoin  ChainConfig  `yaml:"bitcoin"`
	Ethereum ChainConfig  `yaml:"ethereum"`
}

// ChainConfig is the kind-specific connection data for one anchor chain.
// PrivateKey is a reference (file path or secret-store URI), never the raw
// key material, matching the teacher's convention of keeping key material
// out of the config struct's own string fields wherever a path will do.
type ChainConfig struct {
	Network    string `yaml:"network"`
	RPCURL     string `yaml:"rpcUrl"`
	PrivateKey string `yaml:"privateKey"`
}

// StoreConfig selects the persistence backend. Kind-specific connection
// data is deliberately loose (Path/DSN) since the Store Port (spec §4.3) is
// the real contract and this config never reaches into storage internals.
type StoreConfig struct {
	Kind string `yaml:"kind"` // "file" or "sql"
	Path string `yaml:"path,omitempty"`
	DSN  string `yaml:"dsn,omitempty"`
}

// SyncInterval returns the configured peer sync period as a time.Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// SnapshotInterval returns the configured snapshot publication period.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMs) * time.Millisecond
}

// Load reads and parses a YAML config file at path, substituting
// ${VAR_NAME} / ${VAR_NAME:-default} environment references before parsing,
// then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields with the defaults spec §6 names.
func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.SyncIntervalMs == 0 {
		c.SyncIntervalMs = 3_600_000
	}
	if c.SnapshotIntervalMs == 0 {
		c.SnapshotIntervalMs = 86_400_000
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "file"
	}
}

// Validate rejects a config that can't be used to boot a registry. This is
// intentionally narrow: spec §6 treats most options as optional with
// defaults, so only structurally required fields are checked here.
func (c *Config) Validate() error {
	if c.RegistryID == "" {
		return fmt.Errorf("config: registryId is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batchSize must be positive")
	}
	if c.MaxPending != 0 && c.MaxPending < c.BatchSize {
		return fmt.Errorf("config: maxPending must be at least batchSize")
	}
	switch c.Store.Kind {
	case "file", "sql":
	default:
		return fmt.Errorf("config: store.kind must be %q or %q, got %q", "file", "sql", c.Store.Kind)
	}
	if c.Anchoring.Enabled {
		if c.Anchoring.Bitcoin.Network == "" && c.Anchoring.Ethereum.Network == "" {
			return fmt.Errorf("config: anchoring.enabled requires at least one chain's network configured")
		}
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
