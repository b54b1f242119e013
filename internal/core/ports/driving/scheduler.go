package driving

import "context"

// Scheduler runs the indexer periodically.
type Scheduler interface {
	// Start begins running scheduled index runs.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler.
	Stop() error
}
