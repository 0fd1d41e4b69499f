// Copyright 2025 Certen Protocol

package peersync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
)

// HTTPClient is the concrete, net/http-based Client implementation (spec
// §6: "Peer root exchange: ... over HTTP GET"). Grounded on the teacher's
// HTTPPeerManager (pkg/batch/peer_manager.go): a plain *http.Client with a
// fixed request timeout, generalized from a POST attestation-request body
// to three GET endpoints.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient constructs an HTTPClient with the given per-request timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{httpClient: &http.Client{Timeout: timeout}}
}

var _ Client = (*HTTPClient)(nil)

// FetchRootExchange performs a GET to endpoint+"/pohw/v1/root" and decodes
// the peer root exchange payload (spec §6).
func (c *HTTPClient) FetchRootExchange(ctx context.Context, endpoint string) (*MerkleRootExchange, error) {
	var out MerkleRootExchange
	if err := c.getJSON(ctx, endpoint+"/pohw/v1/root", &out); err != nil {
		return nil, fmt.Errorf("peersync: fetch root exchange: %w", err)
	}
	return &out, nil
}

// FetchProofsSince performs a GET to endpoint+"/pohw/v1/proofs?since=N".
func (c *HTTPClient) FetchProofsSince(ctx context.Context, endpoint string, sinceTotal int) ([]*model.ProofRecord, error) {
	var out []*model.ProofRecord
	url := fmt.Sprintf("%s/pohw/v1/proofs?since=%d", endpoint, sinceTotal)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("peersync: fetch proofs since %d: %w", sinceTotal, err)
	}
	return out, nil
}

// FetchBatchesSince performs a GET to endpoint+"/pohw/v1/batches?since=N".
func (c *HTTPClient) FetchBatchesSince(ctx context.Context, endpoint string, sinceTotal int) ([]*model.Batch, error) {
	var out []*model.Batch
	url := fmt.Sprintf("%s/pohw/v1/batches?since=%d", endpoint, sinceTotal)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("peersync: fetch batches since %d: %w", sinceTotal, err)
	}
	return out, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
