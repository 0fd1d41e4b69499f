// Copyright 2025 Certen Protocol

package peersync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
)

func TestHTTPClient_FetchRootExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pohw/v1/root" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(MerkleRootExchange{
			PeerRegistryID: "peer-1",
			MerkleRoot:     "0xabc",
			BatchID:        "batch-1",
			TotalProofs:    4,
			TotalBatches:   1,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(0)
	exchange, err := c.FetchRootExchange(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch root exchange: %v", err)
	}
	if exchange.MerkleRoot != "0xabc" {
		t.Errorf("unexpected merkle root: %s", exchange.MerkleRoot)
	}
}

func TestHTTPClient_FetchProofsSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "2" {
			t.Errorf("expected since=2, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]*model.ProofRecord{{ContentHash: "0x" + "11"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(0)
	proofs, err := c.FetchProofsSince(context.Background(), srv.URL, 2)
	if err != nil {
		t.Fatalf("fetch proofs: %v", err)
	}
	if len(proofs) != 1 {
		t.Fatalf("expected 1 proof, got %d", len(proofs))
	}
}

func TestHTTPClient_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewHTTPClient(0)
	if _, err := c.FetchRootExchange(context.Background(), srv.URL); err == nil {
		t.Error("expected error for non-200 response")
	}
}
