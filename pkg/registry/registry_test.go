// Copyright 2025 Certen Protocol

package registry

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/config"
	certcrypto "github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/intake"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store/memstore"
)

func repeatHex(pair string) string {
	out := ""
	for i := 0; i < 32; i++ {
		out += pair
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		RegistryID: "registry-test",
		BatchSize:  1,
		Store:      config.StoreConfig{Kind: "file"},
	}
}

func TestNew_WiresEveryCoreComponent(t *testing.T) {
	ms := memstore.New()
	r := New(testConfig(), ms, nil, nil)

	if r.Identity == nil || r.Attestors == nil || r.Fraud == nil || r.Intake == nil ||
		r.Collector == nil || r.Scheduler == nil || r.Disputes == nil || r.Metrics == nil {
		t.Fatalf("expected every core component wired, got %+v", r)
	}
	if r.Anchor != nil {
		t.Error("expected no anchor coordinator when no chains are configured")
	}
	if r.PeerSync != nil {
		t.Error("expected no peer sync manager when no peers are configured")
	}
}

func TestRegistry_SubmitDrainsIntoClosedBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms := memstore.New()
	r := New(testConfig(), ms, nil, nil)
	r.Start(ctx)
	defer r.Stop()

	pub, priv, _ := ed25519.GenerateKey(nil)
	if _, err := r.Identity.Register(ctx, "did:pohw:alice", []model.VerificationMethod{{KeyAlgorithm: "ed25519", PublicKey: pub}}); err != nil {
		t.Fatalf("register identity: %v", err)
	}

	hash := "0x" + repeatHex("ab")
	ts := time.Now()
	msg := certcrypto.Canonicalize(hash, "did:pohw:alice", ts.UnixNano())
	req := intake.Request{
		ContentHash:     hash,
		Signature:       ed25519.Sign(priv, msg),
		AuthorID:        "did:pohw:alice",
		AuthorTimestamp: ts,
		ProcessMetrics:  &model.ProcessMetrics{MeetsThresholds: true},
	}

	if _, err := r.Intake.Submit(ctx, req); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := ms.GetByContentHash(ctx, hash)
		if err == nil && stored.BatchID != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the submitted proof to be assigned to a batch within the deadline")
}

func TestBuildClaim_ProducesValidatableClaim(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	r := New(testConfig(), ms, nil, nil)

	pub, priv, _ := ed25519.GenerateKey(nil)
	if _, err := r.Identity.Register(ctx, "did:pohw:alice", []model.VerificationMethod{{KeyAlgorithm: "ed25519", PublicKey: pub}}); err != nil {
		t.Fatalf("register identity: %v", err)
	}

	hash := "0x" + repeatHex("cd")
	ts := time.Now()
	msg := certcrypto.Canonicalize(hash, "did:pohw:alice", ts.UnixNano())
	req := intake.Request{
		ContentHash:     hash,
		Signature:       ed25519.Sign(priv, msg),
		AuthorID:        "did:pohw:alice",
		AuthorTimestamp: ts,
		ProcessMetrics:  &model.ProcessMetrics{MeetsThresholds: true},
	}
	if _, err := r.Intake.Submit(ctx, req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := r.Collector.CreateBatch(ctx, 0); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	c, err := r.BuildClaim(ctx, hash)
	if err != nil {
		t.Fatalf("build claim: %v", err)
	}
	if c.ClaimURI == "" {
		t.Error("expected a populated claim URI")
	}
}
