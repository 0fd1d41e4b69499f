// Copyright 2025 Certen Protocol
//
// Package bitcoin implements the Bitcoin OP_RETURN anchoring strategy (spec
// §4.9): a batch's canonical JSON commitment, truncated to 80 bytes, is
// committed as the sole data push of an OP_RETURN output in a transaction
// spending the anchor wallet's UTXOs.
// Broadcasting and UTXO sourcing are abstracted behind small interfaces,
// grounded on the teacher's Chain abstraction (pkg/anchor/anchor_manager.go)
// generalized from a single contract RPC call to a pluggable transport.
package bitcoin

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/anchor"
)

// DustLimit is the minimum non-OP_RETURN output value the strategy will
// produce for change, in satoshis.
const DustLimit = btcutil.Amount(546)

// MaxOpReturnPayload is Bitcoin Core's standard relay policy limit for an
// OP_RETURN data push.
const MaxOpReturnPayload = 80

var (
	ErrNoUTXO           = errors.New("bitcoin: no spendable UTXO available for anchoring")
	ErrInsufficientFunds = errors.New("bitcoin: selected UTXO does not cover output value plus fee")
)

// UTXO is one spendable output the anchor wallet controls.
type UTXO struct {
	TxID   chainhash.Hash
	Index  uint32
	Value  btcutil.Amount
	PkScript []byte
}

// UTXOSource selects a UTXO able to cover an anchoring transaction.
type UTXOSource interface {
	SelectUTXO(ctx context.Context, minValue btcutil.Amount) (*UTXO, error)
}

// FeeEstimator returns the current recommended fee rate in satoshis/vbyte.
type FeeEstimator interface {
	EstimateFeeRate(ctx context.Context) (btcutil.Amount, error)
}

// Broadcaster submits a raw transaction to the Bitcoin network and checks
// confirmation depth for a previously broadcast one.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)
	Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)
}

// Strategy anchors batch roots via a single-input, single-OP_RETURN-output
// Bitcoin transaction, returning the change to the same wallet.
type Strategy struct {
	key          *btcec.PrivateKey
	changeScript []byte
	utxos        UTXOSource
	fees         FeeEstimator
	broadcaster  Broadcaster
	minConfirms  uint32
}

// New constructs the Bitcoin anchoring strategy. changeScript is the pkScript
// that change outputs (and the anchor wallet's own funds) pay back to.
func New(key *btcec.PrivateKey, changeScript []byte, utxos UTXOSource, fees FeeEstimator, broadcaster Broadcaster, minConfirms uint32) *Strategy {
	return &Strategy{key: key, changeScript: changeScript, utxos: utxos, fees: fees, broadcaster: broadcaster, minConfirms: minConfirms}
}

func (s *Strategy) ChainName() string { return "bitcoin" }

// buildOpReturnScript builds a standard OP_RETURN script carrying the
// commitment payload, truncated to the relay policy's 80-byte data limit
// (spec §6: "UTF-8 JSON ... truncated to 80 bytes").
func buildOpReturnScript(c anchor.Commitment) ([]byte, error) {
	payload, err := anchor.CanonicalJSON(c)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxOpReturnPayload {
		payload = payload[:MaxOpReturnPayload]
	}
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData(payload)
	return builder.Script()
}

// Anchor spends one UTXO into an OP_RETURN output carrying c's commitment
// payload and a change output back to the wallet, signs it, and broadcasts it.
func (s *Strategy) Anchor(ctx context.Context, c anchor.Commitment) (*anchor.Result, error) {
	opReturnScript, err := buildOpReturnScript(c)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: build OP_RETURN script: %w", err)
	}
	// OP_RETURN, OP_PUSHDATA1 and a length byte precede the data push.
	if len(opReturnScript) > MaxOpReturnPayload+3 {
		return nil, fmt.Errorf("bitcoin: OP_RETURN payload exceeds relay policy limit")
	}

	feeRate, err := s.fees.EstimateFeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: estimate fee rate: %w", err)
	}
	// A single-input, two-output (OP_RETURN + change) P2WPKH transaction is
	// ~153 vbytes; this is a fixed estimate rather than a full vsize
	// computation, matching the coarse-grained estimator the teacher's
	// anchor manager uses for its own EstimateGas call.
	const estimatedVSize = 153
	fee := feeRate * estimatedVSize

	utxo, err := s.utxos.SelectUTXO(ctx, fee+DustLimit)
	if err != nil {
		return nil, err
	}
	if utxo == nil {
		return nil, ErrNoUTXO
	}
	if utxo.Value < fee+DustLimit {
		return nil, ErrInsufficientFunds
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	prevOut := wire.NewOutPoint(&utxo.TxID, utxo.Index)
	tx.AddTxIn(wire.NewTxIn(prevOut, nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, opReturnScript))

	change := utxo.Value - fee
	if change >= DustLimit {
		tx.AddTxOut(wire.NewTxOut(int64(change), s.changeScript))
	}

	sigScript, err := txscript.SignatureScript(tx, 0, utxo.PkScript, txscript.SigHashAll, s.key, true)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: sign input: %w", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	txid, err := s.broadcaster.Broadcast(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: broadcast: %w", err)
	}

	return &anchor.Result{Chain: s.ChainName(), TxHash: txid.String()}, nil
}

func (s *Strategy) Confirmed(ctx context.Context, txHashHex string) (bool, *uint64, error) {
	txid, err := chainhash.NewHashFromStr(txHashHex)
	if err != nil {
		return false, nil, fmt.Errorf("bitcoin: parse txid: %w", err)
	}
	confirmations, err := s.broadcaster.Confirmations(ctx, *txid)
	if err != nil {
		return false, nil, err
	}
	n := uint64(confirmations)
	return confirmations >= s.minConfirms, &n, nil
}
