package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs the indexer periodically.
// It is a pure core service with no external control API.
type Scheduler struct {
	indexer  driving.Indexer
	interval time.Duration
	opts     domain.IndexOptions

	// onRun is called after every run with its report.
	onRun func(*domain.ScanReport, error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that indexes every interval.
func NewScheduler(indexer driving.Indexer, interval time.Duration, opts domain.IndexOptions) *Scheduler {
	return &Scheduler{
		indexer:  indexer,
		interval: interval,
		opts:     opts,
	}
}

// OnRun registers a callback invoked after each run.
func (s *Scheduler) OnRun(fn func(*domain.ScanReport, error)) {
	s.onRun = fn
}

// Start runs the indexer immediately and then every interval. This
// method blocks until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return domain.NewValidationError("interval", s.interval.String(), domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler, waiting for a run in
// progress to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// run is the main scheduler loop. Runs never overlap: a run that
// outlasts the interval delays the next tick.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.indexer.Index(ctx, s.opts)
	switch {
	case errors.Is(err, domain.ErrIndexBusy):
		logger.Info("scheduler: another index run is in progress, skipping")
	case err != nil && ctx.Err() == nil:
		logger.Error("scheduler: index run failed: %v", err)
	case report != nil && report.Failed > 0:
		logger.Warn("scheduler: %d records failed to index", report.Failed)
	}
	if s.onRun != nil {
		s.onRun(report, err)
	}
}
