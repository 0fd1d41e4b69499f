// Copyright 2025 Certen Protocol
//
// Package anchor coordinates committing batch Merkle roots to external
// blockchains (spec §4.9). It is a thin orchestration layer over one
// Strategy per target chain, mirroring the teacher's AnchorManager/Chain
// split: the coordinator owns retry policy, idempotent anchor bookkeeping,
// and per-chain fan-out, while each Strategy only knows how to commit one
// root on one chain.
package anchor

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	certcrypto "github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// Commitment is the data a Strategy anchors: a batch's Merkle root plus
// enough context to build a chain-native commitment.
type Commitment struct {
	BatchID    string
	Root       [32]byte // decoded batch.Root
	RegistryID string
	Timestamp  time.Time
}

// Payload is the canonical wire payload a chain commitment encodes (spec §6:
// the Bitcoin OP_RETURN payload and the Ethereum anchor data both commit to
// this same shape, one as truncated JSON and one as its keccak256 hash).
type Payload struct {
	POHW      string `json:"pohw"`
	Root      string `json:"root"`
	Batch     string `json:"batch"`
	Registry  string `json:"registry"`
	Timestamp string `json:"timestamp"`
}

// CanonicalJSON renders c's commitment payload as the fixed-field-order JSON
// document every chain strategy commits to.
func CanonicalJSON(c Commitment) ([]byte, error) {
	payload := Payload{
		POHW:      "PoHW",
		Root:      certcrypto.ToHex(c.Root),
		Batch:     c.BatchID,
		Registry:  c.RegistryID,
		Timestamp: c.Timestamp.UTC().Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

// Result is what a successful Strategy.Anchor call produces.
type Result struct {
	Chain       string
	TxHash      string
	BlockNumber *uint64
	Confirmed   bool
}

// Strategy commits a Commitment to one external chain. Implementations live
// in pkg/anchor/bitcoin and pkg/anchor/ethereum.
type Strategy interface {
	ChainName() string
	Anchor(ctx context.Context, c Commitment) (*Result, error)
	// Confirmed reports whether a previously-submitted anchor transaction
	// has reached the chain's finality threshold.
	Confirmed(ctx context.Context, txHash string) (bool, *uint64, error)
}

// RetryPolicy configures the coordinator's per-chain retry/backoff (spec
// §4.9's "transient failures are retried with backoff").
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy mirrors the teacher's anchor-manager retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond}
}

// Coordinator fans a batch root out to every configured chain strategy.
type Coordinator struct {
	batches    store.BatchStore
	strategies []Strategy
	retry      RetryPolicy
	registryID string
	logger     *log.Logger
}

// New constructs a Coordinator over the given chain strategies. registryID is
// embedded in every commitment payload (spec §6) so a consumer observing a
// chain anchor can tell which registry produced it without a side channel.
func New(batches store.BatchStore, strategies []Strategy, retry RetryPolicy, registryID string) *Coordinator {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Coordinator{
		batches:    batches,
		strategies: strategies,
		retry:      retry,
		registryID: registryID,
		logger:     log.New(os.Stderr, "[anchor] ", log.LstdFlags),
	}
}

// AnchorBatch commits batchID's root to every configured chain and appends
// the resulting anchors to the batch record. A chain that fails after retries
// does not stop the others; the anchors that succeeded are still recorded and
// the first chain failure is returned alongside them. Anchoring is idempotent per
// chain: a chain that already has an anchor recorded for this batch is
// skipped (spec §4.9, invariant #7 "at most one anchor per (batch, chain)").
func (c *Coordinator) AnchorBatch(ctx context.Context, batchID string) ([]model.Anchor, error) {
	b, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	root, err := certcrypto.FromHex(b.Root)
	if err != nil {
		return nil, regerr.Integrity("malformed_batch_root", err.Error())
	}

	already := make(map[string]bool, len(b.Anchors))
	for _, a := range b.Anchors {
		already[a.Chain] = true
	}

	commit := Commitment{BatchID: batchID, Root: root, RegistryID: c.registryID, Timestamp: time.Now()}
	var produced []model.Anchor
	var failure error
	for _, strat := range c.strategies {
		if already[strat.ChainName()] {
			continue
		}
		result, err := c.anchorWithRetry(ctx, strat, commit)
		if err != nil {
			c.logger.Printf("anchor on %s failed after retries: %v", strat.ChainName(), err)
			if failure == nil {
				failure = regerr.Anchor("anchor_failed", "anchoring on "+strat.ChainName()+" failed after retries", err)
			}
			continue
		}
		anchor := model.Anchor{Chain: result.Chain, TxHash: result.TxHash, BlockNumber: result.BlockNumber, AnchoredAt: time.Now()}
		produced = append(produced, anchor)
	}

	if len(produced) > 0 {
		if err := c.batches.AppendAnchors(ctx, batchID, produced); err != nil {
			return produced, err
		}
	}
	return produced, failure
}

func (c *Coordinator) anchorWithRetry(ctx context.Context, strat Strategy, commit Commitment) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.BaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := strat.Anchor(ctx, commit)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.logger.Printf("%s anchor attempt %d/%d failed: %v", strat.ChainName(), attempt+1, c.retry.MaxAttempts, err)
		if !isRetryable(err) {
			c.logger.Printf("%s anchor failure is non-retryable, giving up after attempt %d", strat.ChainName(), attempt+1)
			break
		}
	}
	return nil, lastErr
}

// isRetryable applies spec §4.9's non-retryable list: insufficient-funds,
// invalid-input, and key-format errors propagate immediately rather than
// burning through the backoff schedule. Strategies return plain wrapped
// errors rather than regerr kinds (they have no store/caller-facing
// boundary of their own), so the check is on message content, matching the
// spec's own informal phrasing of the rule.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"insufficient", "invalid", "key-format", "malformed key", "bad key"} {
		if strings.Contains(msg, substr) {
			return false
		}
	}
	return true
}

// ConfirmationSummary reports, per chain, whether a batch's anchor has
// reached finality (a supplement to spec §4.9: operators need a single call
// to ask "is this batch durably anchored yet?").
func (c *Coordinator) ConfirmationSummary(ctx context.Context, batchID string) (map[string]bool, error) {
	b, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(b.Anchors))
	for _, a := range b.Anchors {
		for _, strat := range c.strategies {
			if strat.ChainName() != a.Chain {
				continue
			}
			confirmed, _, err := strat.Confirmed(ctx, a.TxHash)
			if err != nil {
				return nil, err
			}
			out[a.Chain] = confirmed
		}
	}
	return out, nil
}
