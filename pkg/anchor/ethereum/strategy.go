// Copyright 2025 Certen Protocol
//
// Package ethereum implements the Ethereum anchoring strategy (spec §4.9):
// a batch's Merkle root is committed as calldata on a zero-value self-send
// transaction, so anchoring needs no deployed contract. Grounded on the
// teacher's low-level ethereum.Client (pkg/ethereum/client.go) and its
// EIP-1559 gas handling, generalized from a contract-ABI call to a plain
// calldata commitment.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/anchor"
)

// Client abstracts the subset of ethclient.Client the strategy needs, so
// tests can supply a fake without dialing a real node. SuggestGasTipCap
// returning an error is treated as "this chain doesn't speak EIP-1559" and
// triggers the legacy gasPrice fallback (spec §4.9).
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereumCallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ethereumCallMsg mirrors ethereum.CallMsg's fields the strategy populates
// for its gas estimate (a self-send carrying the commitment calldata),
// named locally so this package doesn't need the top-level go-ethereum
// package just for one struct.
type ethereumCallMsg struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// minGasLimit and defaultGasLimit implement spec §4.9's gasLimit formula:
// max(21000, 1.2*estimateGas), clamped to a safe default when estimation
// itself is unavailable.
const (
	minGasLimit     = 21000
	defaultGasLimit = 50000
)

// Strategy anchors batch roots as calldata on a zero-value self-send
// transaction signed by the registry's Ethereum anchor key. gasLimit, when
// non-zero, is an operator-supplied override; zero means derive it per
// transaction from EstimateGas (spec §4.9).
type Strategy struct {
	client      Client
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	gasLimit    uint64
	minConfirms uint64
}

// New constructs the Ethereum anchoring strategy. Pass gasLimit as 0 to
// derive it dynamically from EstimateGas on every anchor call.
func New(client Client, key *ecdsa.PrivateKey, chainID *big.Int, gasLimit uint64, minConfirms uint64) *Strategy {
	return &Strategy{
		client:      client,
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:     chainID,
		gasLimit:    gasLimit,
		minConfirms: minConfirms,
	}
}

func (s *Strategy) ChainName() string { return "ethereum" }

// commitmentCalldata derives the transaction's data field: keccak256 of the
// UTF-8 canonical-JSON commitment payload, exactly 32 bytes (spec §6).
func commitmentCalldata(c anchor.Commitment) ([]byte, error) {
	payload, err := anchor.CanonicalJSON(c)
	if err != nil {
		return nil, fmt.Errorf("ethereum: encode commitment payload: %w", err)
	}
	return crypto.Keccak256(payload), nil
}

// Anchor signs and submits a zero-value self-send transaction whose calldata
// commits to the batch root. Gas pricing prefers EIP-1559 (tip cap + fee
// cap) and falls back to a legacy gasPrice transaction when the client
// reports the chain doesn't support SuggestGasTipCap (spec §4.9).
func (s *Strategy) Anchor(ctx context.Context, c anchor.Commitment) (*anchor.Result, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("ethereum: fetch nonce: %w", err)
	}

	data, err := commitmentCalldata(c)
	if err != nil {
		return nil, err
	}

	gasLimit, err := s.estimateGasLimit(ctx, data)
	if err != nil {
		return nil, err
	}

	var tx *types.Transaction
	tipCap, tipErr := s.client.SuggestGasTipCap(ctx)
	if tipErr == nil {
		gasPrice, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("ethereum: fetch gas price: %w", err)
		}
		feeCap := new(big.Int).Add(gasPrice, tipCap)
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: tipCap,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &s.from,
			Value:     big.NewInt(0),
			Data:      data,
		})
	} else {
		gasPrice, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("ethereum: fetch gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &s.from,
			Value:    big.NewInt(0),
			Data:     data,
		})
	}

	signer := s.signerFor(tipErr == nil)
	signedTx, err := types.SignTx(tx, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("ethereum: sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("ethereum: send transaction: %w", err)
	}

	return &anchor.Result{Chain: s.ChainName(), TxHash: signedTx.Hash().Hex()}, nil
}

func (s *Strategy) Confirmed(ctx context.Context, txHash string) (bool, *uint64, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return false, nil, fmt.Errorf("ethereum: fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, nil, fmt.Errorf("ethereum: transaction %s reverted", txHash)
	}
	latest, err := s.client.BlockNumber(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("ethereum: fetch latest block: %w", err)
	}
	blockNumber := receipt.BlockNumber.Uint64()
	confirmations := latest - blockNumber
	n := blockNumber
	return confirmations >= s.minConfirms, &n, nil
}

// estimateGasLimit implements spec §4.9's gasLimit formula: when the
// strategy was not constructed with an operator override, it estimates gas
// for the self-send test call and takes max(21000, 1.2*estimate); if
// estimation itself fails, it falls back to the safe default rather than
// failing the anchor attempt outright.
func (s *Strategy) estimateGasLimit(ctx context.Context, data []byte) (uint64, error) {
	if s.gasLimit > 0 {
		return s.gasLimit, nil
	}
	estimate, err := s.client.EstimateGas(ctx, ethereumCallMsg{From: s.from, To: &s.from, Value: big.NewInt(0), Data: data})
	if err != nil {
		return defaultGasLimit, nil
	}
	scaled := uint64(float64(estimate) * 1.2)
	if scaled < minGasLimit {
		return minGasLimit, nil
	}
	return scaled, nil
}

// signerFor picks the signer matching the transaction type just built:
// London (EIP-1559) when a tip cap was available, legacy (EIP-155)
// otherwise.
func (s *Strategy) signerFor(eip1559 bool) types.Signer {
	if eip1559 {
		return types.NewLondonSigner(s.chainID)
	}
	return types.NewEIP155Signer(s.chainID)
}
