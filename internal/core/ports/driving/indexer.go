package driving

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Indexer projects the repository's sidecars into the catalog.
type Indexer interface {
	// Index scans the repository and reconciles the catalog with it.
	// Per-record failures are counted in the report, not returned.
	Index(ctx context.Context, opts domain.IndexOptions) (*domain.ScanReport, error)

	// State returns the current lifecycle state.
	State() domain.ScanState
}
