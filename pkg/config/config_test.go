// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "registryId: reg-1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("expected default batchSize 1000, got %d", cfg.BatchSize)
	}
	if cfg.SyncIntervalMs != 3_600_000 {
		t.Errorf("expected default syncIntervalMs 3600000, got %d", cfg.SyncIntervalMs)
	}
	if cfg.SnapshotIntervalMs != 86_400_000 {
		t.Errorf("expected default snapshotIntervalMs 86400000, got %d", cfg.SnapshotIntervalMs)
	}
	if cfg.Store.Kind != "file" {
		t.Errorf("expected default store.kind file, got %q", cfg.Store.Kind)
	}
	if cfg.SyncInterval().String() != "1h0m0s" {
		t.Errorf("expected SyncInterval() of 1h, got %s", cfg.SyncInterval())
	}
}

func TestLoad_SubstitutesEnvVars(t *testing.T) {
	t.Setenv("POHW_RPC_URL", "https://example.invalid/rpc")

	path := writeConfig(t, `
registryId: reg-1
anchoring:
  enabled: true
  ethereum:
    network: mainnet
    rpcUrl: ${POHW_RPC_URL}
    privateKey: ${POHW_ETH_KEY:-/run/secrets/eth.key}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Anchoring.Ethereum.RPCURL != "https://example.invalid/rpc" {
		t.Errorf("expected substituted rpcUrl, got %q", cfg.Anchoring.Ethereum.RPCURL)
	}
	if cfg.Anchoring.Ethereum.PrivateKey != "/run/secrets/eth.key" {
		t.Errorf("expected default substitution for unset env var, got %q", cfg.Anchoring.Ethereum.PrivateKey)
	}
}

func TestLoad_RejectsMissingRegistryID(t *testing.T) {
	path := writeConfig(t, "batchSize: 500\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error for missing registryId")
	}
}

func TestLoad_RejectsInvalidStoreKind(t *testing.T) {
	path := writeConfig(t, "registryId: reg-1\nstore:\n  kind: mongo\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error for unsupported store.kind")
	}
}

func TestLoad_RejectsAnchoringEnabledWithNoChainConfigured(t *testing.T) {
	path := writeConfig(t, "registryId: reg-1\nanchoring:\n  enabled: true\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error when anchoring is enabled with no chain network set")
	}
}

func TestLoad_MaxPendingBelowBatchSizeRejected(t *testing.T) {
	path := writeConfig(t, "registryId: reg-1\nbatchSize: 1000\nmaxPending: 10\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error when maxPending is below batchSize")
	}
}

func TestLoad_PeersListParsed(t *testing.T) {
	path := writeConfig(t, "registryId: reg-1\npeers:\n  - https://peer-a.example\n  - https://peer-b.example\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[0] != "https://peer-a.example" {
		t.Errorf("unexpected peers: %+v", cfg.Peers)
	}
}
