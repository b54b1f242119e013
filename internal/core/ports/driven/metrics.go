package driven

import (
	"time"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// WriteMetrics observes writer outcomes.
type WriteMetrics interface {
	// ObserveWrite counts one write by kind (document, stream) and outcome.
	ObserveWrite(kind, outcome string)
}

// IndexMetrics observes indexer runs.
type IndexMetrics interface {
	// ObserveRecord counts one record outcome.
	ObserveRecord(outcome domain.Outcome)

	// ObserveScan records a finished run's duration.
	ObserveScan(d time.Duration)
}
