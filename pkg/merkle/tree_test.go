// Copyright 2025 Certen Protocol

package merkle

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func mustLeaf(b byte) []byte {
	h := sha256.Sum256([]byte{b})
	return h[:]
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := mustLeaf(1)
	tree, err := BuildTree([][]byte{leaf})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bytes.Equal(tree.Root(), leaf) {
		t.Errorf("single leaf root mismatch: got %x want %x", tree.Root(), leaf)
	}

	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(proof.Path) != 0 {
		t.Errorf("expected empty proof path for single-leaf batch, got %d entries", len(proof.Path))
	}
	ok, err := VerifyProof(leaf, proof, tree.Root())
	if err != nil || !ok {
		t.Errorf("single leaf proof should verify: ok=%v err=%v", ok, err)
	}
}

func TestBuildTree_EmptyRejected(t *testing.T) {
	if _, err := BuildTree(nil); err != ErrEmptyTree {
		t.Errorf("expected ErrEmptyTree, got %v", err)
	}
}

func TestBuildTree_InvalidLeafSize(t *testing.T) {
	if _, err := BuildTree([][]byte{{1, 2, 3}}); err == nil {
		t.Error("expected error for malformed leaf")
	}
}

func TestBuildTree_FourLeavesRoundTrip(t *testing.T) {
	leaves := make([][]byte, 4)
	for i := range leaves {
		leaves[i] = mustLeaf(byte(i + 1))
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.LeafCount() != 4 {
		t.Fatalf("leaf count = %d, want 4", tree.LeafCount())
	}

	for i, leaf := range leaves {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("proof for leaf %d: %v", i, err)
		}
		if len(proof.Path) != 2 {
			t.Errorf("leaf %d: expected 2-entry path in a 4-leaf tree, got %d", i, len(proof.Path))
		}
		ok, err := VerifyProof(leaf, proof, tree.Root())
		if err != nil || !ok {
			t.Errorf("leaf %d: proof should verify: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestBuildTree_OddLeavesDuplicatesTail(t *testing.T) {
	leaves := [][]byte{mustLeaf(1), mustLeaf(2), mustLeaf(3)}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	proof, err := tree.GenerateProofByHash(leaves[2])
	if err != nil {
		t.Fatalf("proof by hash: %v", err)
	}
	ok, err := VerifyProof(leaves[2], proof, tree.Root())
	if err != nil || !ok {
		t.Errorf("odd-tail leaf should verify: ok=%v err=%v", ok, err)
	}
}

func TestVerifyProof_WrongRootFails(t *testing.T) {
	leaves := [][]byte{mustLeaf(1), mustLeaf(2)}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	proof, _ := tree.GenerateProof(0)
	bogusRoot := mustLeaf(99)
	ok, err := VerifyProof(leaves[0], proof, bogusRoot)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("proof should not verify against an unrelated root")
	}
}

func TestGenerateProofByHash_NotFound(t *testing.T) {
	tree, _ := BuildTree([][]byte{mustLeaf(1)})
	if _, err := tree.GenerateProofByHash(mustLeaf(2)); err != ErrLeafNotFound {
		t.Errorf("expected ErrLeafNotFound, got %v", err)
	}
}

func TestDeterminism_SameLeavesSameRoot(t *testing.T) {
	leaves := make([][]byte, 5)
	for i := range leaves {
		leaves[i] = mustLeaf(byte(i))
	}
	t1, _ := BuildTree(leaves)
	t2, _ := BuildTree(leaves)
	if !bytes.Equal(t1.Root(), t2.Root()) {
		t.Error("two trees built from the same ordered leaves must have identical roots")
	}
}
