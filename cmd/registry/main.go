// Copyright 2025 Certen Protocol
//
// Command registry is the operator-facing CLI surface (spec §6): start the
// node, request a batch, request an anchor, or request a peer sync. Flag-
// based subcommands in the teacher's cmd/ style (cmd/bls-zk-setup), not a
// third-party CLI framework — the teacher ships none and the surface here
// is small enough not to need one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/config"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/peersync"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/registry"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store/memstore"
)

// Exit codes per spec §6: 0 success, 1 fatal config/store error, 2 network
// failure surfaced to the operator.
const (
	exitOK      = 0
	exitConfig  = 1
	exitNetwork = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitConfig
	}

	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "batch":
		return runBatch(args[1:])
	case "anchor":
		return runAnchor(args[1:])
	case "sync":
		return runSync(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		usage()
		return exitConfig
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: registry <start|batch|anchor|sync> [flags]")
}

// loadRegistry parses the shared -config flag from fs and boots a Registry
// over an in-memory store. Production file/SQL stores are external,
// out-of-core collaborators (spec §1); this CLI exercises the reference
// store so the core pipeline is runnable standalone.
func loadRegistry(fs *flag.FlagSet, args []string) (*registry.Registry, int) {
	configPath := fs.String("config", "registry.yaml", "path to the registry config file")
	if err := fs.Parse(args); err != nil {
		return nil, exitConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return nil, exitConfig
	}

	var peerClient peersync.Client
	if len(cfg.Peers) > 0 {
		peerClient = peersync.NewHTTPClient(10 * time.Second)
	}

	// No concrete Bitcoin/Ethereum anchor strategy is constructed here: both
	// require operator-supplied key material and a live RPC/UTXO/broadcast
	// client, which are deployment-specific and out of this CLI's scope.
	r := registry.New(cfg, memstore.New(), nil, peerClient)
	if cfg.Anchoring.Enabled {
		fmt.Fprintln(os.Stderr, "warning: anchoring.enabled is set but no chain strategy is wired into this CLI build; batches will close unanchored")
	}
	return r, exitOK
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	r, code := loadRegistry(fs, args)
	if r == nil {
		return code
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	r.Start(ctx)
	fmt.Println("registry started")

	<-sigCh
	cancel()
	r.Stop()
	return exitOK
}

func runBatch(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	r, code := loadRegistry(fs, args)
	if r == nil {
		return code
	}

	closed, err := r.Collector.CreateBatch(context.Background(), 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch creation failed: %v\n", err)
		return exitConfig
	}
	fmt.Printf("closed batch %s with %d proofs, root=%s\n", closed.Batch.ID, closed.Batch.Size, closed.Batch.Root)
	return exitOK
}

func runAnchor(args []string) int {
	fs := flag.NewFlagSet("anchor", flag.ContinueOnError)
	batchID := fs.String("batch", "", "batch id to anchor")
	r, code := loadRegistry(fs, args)
	if r == nil {
		return code
	}
	if *batchID == "" {
		fmt.Fprintln(os.Stderr, "anchor: -batch is required")
		return exitConfig
	}
	if r.Anchor == nil {
		fmt.Fprintln(os.Stderr, "anchor: no chain strategy is configured")
		return exitConfig
	}

	anchors, err := r.Anchor.AnchorBatch(context.Background(), *batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anchor failed: %v\n", err)
		return exitNetwork
	}
	for _, a := range anchors {
		fmt.Printf("anchored on %s: %s\n", a.Chain, a.TxHash)
	}
	return exitOK
}

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	r, code := loadRegistry(fs, args)
	if r == nil {
		return code
	}
	if r.PeerSync == nil {
		fmt.Fprintln(os.Stderr, "sync: no peers are configured")
		return exitConfig
	}

	r.PeerSync.SyncAll(context.Background())
	for _, p := range r.PeerSync.ListPeers() {
		fmt.Printf("peer %s (%s): status=%s lastSync=%s\n", p.ID, p.Endpoint, p.Status, p.LastSync)
		if p.Status == peersync.StatusError {
			code = exitNetwork
		}
	}
	return code
}
