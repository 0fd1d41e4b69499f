// Copyright 2025 Certen Protocol

package batch

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// ReadyCallback is invoked with the result of every successful batch close.
type ReadyCallback func(*ClosedBatch)

// Scheduler drives the Collector on a timer (spec §4.8's "periodic batch
// interval") and also accepts ad hoc wake-ups from the intake pipeline's
// BatchSignal hook, coalescing concurrent triggers into a single run.
type Scheduler struct {
	mu        sync.Mutex
	collector *Collector
	interval  time.Duration
	onReady   ReadyCallback
	logger    *log.Logger

	stopCh chan struct{}
	wakeCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler constructs a Scheduler. interval <= 0 disables the timer and
// batches are only created on explicit Wake calls.
func NewScheduler(c *Collector, interval time.Duration, onReady ReadyCallback) *Scheduler {
	return &Scheduler{
		collector: c,
		interval:  interval,
		onReady:   onReady,
		logger:    log.New(os.Stderr, "[batch] ", log.LstdFlags),
		stopCh:    make(chan struct{}),
		wakeCh:    make(chan struct{}, 1),
	}
}

// Start runs the scheduler loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.doneCh != nil {
		s.mu.Unlock()
		return
	}
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-tick:
			s.runOnce(ctx)
		case <-s.wakeCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	closed, err := s.collector.CreateBatch(ctx, s.collector.BatchSize)
	if err != nil {
		if err != ErrNoPendingProofs {
			s.logger.Printf("batch creation failed: %v", err)
		}
		return
	}
	s.logger.Printf("closed batch %s with %d proofs, root=%s", closed.Batch.ID, closed.Batch.Size, closed.Batch.Root)
	if s.onReady != nil {
		s.onReady(closed)
	}
}

// Wake requests an out-of-band batch attempt, e.g. from the intake
// pipeline's BatchSignal hook. Non-blocking: a wake already pending is
// sufficient.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Stop halts the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	done := s.doneCh
	s.mu.Unlock()
	if done == nil {
		return
	}
	close(s.stopCh)
	<-done
}
