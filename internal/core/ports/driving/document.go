package driving

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// DocumentService reads catalogued entries back.
type DocumentService interface {
	// Show resolves a document ID, content path or row ID to its details.
	Show(ctx context.Context, key string) (*DocumentDetails, error)

	// Stats summarises the catalog.
	Stats(ctx context.Context) (*domain.CatalogStats, error)

	// Runs returns recent indexer runs, most recent first.
	Runs(ctx context.Context, limit int) ([]domain.ScanReport, error)
}

// DocumentDetails is everything known about one catalog entry.
type DocumentDetails struct {
	Kind domain.EntryKind

	// Exactly one of Document and Stream is set.
	Document *domain.DocumentRow
	Stream   *domain.StreamRow

	// Record is the sidecar; nil if it could not be read.
	Record *domain.Record

	// ContentPath and MetadataPath are absolute.
	ContentPath  string
	MetadataPath string

	// Linked holds the row IDs on the other side of the entry's links.
	Linked []int64
}
