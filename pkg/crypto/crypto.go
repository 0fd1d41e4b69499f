// Copyright 2025 Certen Protocol
//
// Package crypto provides the registry's pure cryptographic primitives:
// SHA-256 hashing, ed25519 signature verification, and the canonical byte
// encoding that signatures are computed over. Nothing here performs I/O.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidHexDigest is returned when a hex string does not decode to a
// 32-byte digest.
var ErrInvalidHexDigest = errors.New("crypto: value is not a 0x-prefixed 32-byte hex digest")

// Hash computes the SHA-256 digest of data.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashConcat hashes the concatenation of left and right, used throughout the
// Merkle engine and for compound-hash derivation.
func HashConcat(left, right []byte) [32]byte {
	buf := make([]byte, 0, len(left)+len(right))
	buf = append(buf, left...)
	buf = append(buf, right...)
	return sha256.Sum256(buf)
}

// CompoundHash computes H(contentHash || processDigest), the binding between
// a content fingerprint and the authoring process that produced it.
func CompoundHash(contentHash, processDigest [32]byte) [32]byte {
	return HashConcat(contentHash[:], processDigest[:])
}

// ToHex renders a 32-byte digest as a lowercase 0x-prefixed hex string.
func ToHex(digest [32]byte) string {
	return "0x" + hex.EncodeToString(digest[:])
}

// FromHex parses a lowercase-or-uppercase, 0x-prefixed-or-bare 64-character
// hex string into a 32-byte digest, normalizing on read per the wire-format
// rule in spec §4.1.
func FromHex(s string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) != 64 {
		return out, ErrInvalidHexDigest
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidHexDigest, err)
	}
	copy(out[:], raw)
	return out, nil
}

// NormalizeHex re-encodes any accepted hex form (with or without 0x prefix,
// any case) into the canonical lowercase 0x-prefixed wire form.
func NormalizeHex(s string) (string, error) {
	digest, err := FromHex(s)
	if err != nil {
		return "", err
	}
	return ToHex(digest), nil
}

// Canonicalize produces the stable byte serialization of the subset of a
// ProofRecord that a submission signature covers: (contentHash, authorId,
// authorTimestamp). It is a fixed, explicit encoding rather than a generic
// JSON/struct marshal so that signers and verifiers never disagree on field
// order or formatting.
func Canonicalize(contentHash, authorID string, authorTimestampUnixNano int64) []byte {
	var buf bytes.Buffer
	buf.WriteString(contentHash)
	buf.WriteByte('|')
	buf.WriteString(authorID)
	buf.WriteByte('|')
	buf.WriteString(strconv.FormatInt(authorTimestampUnixNano, 10))
	return buf.Bytes()
}

// VerifySignature verifies an ed25519 signature over message. It is the
// canonical verification case named in spec §4.1; other key algorithms are
// rejected explicitly rather than silently accepted.
func VerifySignature(pubkey ed25519.PublicKey, message, signature []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information about where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
