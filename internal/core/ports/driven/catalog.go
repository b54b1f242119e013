package driven

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Catalog is the relational projection of the repository's sidecars.
// Writes happen inside a CatalogTx so that a record's catalog row, its
// full-text row and its ledger rows commit together.
type Catalog interface {
	// Begin opens a transaction scope. Callers must Commit or Rollback.
	Begin(ctx context.Context) (CatalogTx, error)

	// GetDocument returns a document row by row ID.
	GetDocument(ctx context.Context, id int64) (*domain.DocumentRow, error)

	// FindDocument looks a document up by document ID or content path.
	FindDocument(ctx context.Context, key string) (*domain.DocumentRow, error)

	// GetStream returns a stream row by row ID.
	GetStream(ctx context.Context, id int64) (*domain.StreamRow, error)

	// FindStream looks a stream up by document ID or content path.
	FindStream(ctx context.Context, key string) (*domain.StreamRow, error)

	// ListDocuments returns document rows ordered by ID, optionally for one entity.
	ListDocuments(ctx context.Context, entity string) ([]domain.DocumentRow, error)

	// ListStreams returns stream rows ordered by ID, optionally for one entity.
	ListStreams(ctx context.Context, entity string) ([]domain.StreamRow, error)

	// Entries lists every catalog row, optionally for one entity.
	Entries(ctx context.Context, entity string) ([]domain.CatalogEntry, error)

	// LinksForStream returns the documents a stream references.
	LinksForStream(ctx context.Context, streamID int64) ([]domain.Link, error)

	// LinksForDocument returns the streams that reference a document.
	LinksForDocument(ctx context.Context, documentID int64) ([]domain.Link, error)

	// Search runs a full-text match expression, bm25 ranked.
	Search(ctx context.Context, match string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Recent lists the newest documents, for empty queries.
	Recent(ctx context.Context, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Stats summarises the catalog.
	Stats(ctx context.Context) (*domain.CatalogStats, error)

	// CheckAlignment compares full-text rows with document rows.
	CheckAlignment(ctx context.Context) (*domain.AlignmentReport, error)
}

// CatalogTx is one transaction scope over the catalog.
type CatalogTx interface {
	// LookupDocument finds a document by (entity, rel_path).
	// Returns domain.ErrNotFound if absent.
	LookupDocument(entity, relPath string) (*domain.DocumentRow, error)

	// DocumentByHash finds the document holding a digest.
	// Returns domain.ErrNotFound if absent.
	DocumentByHash(hash string) (*domain.DocumentRow, error)

	// InsertDocument inserts a row with its explicit ID. Returns false
	// when a unique constraint already holds the row.
	InsertDocument(row *domain.DocumentRow) (bool, error)

	// UpdateDocument rewrites the content-derived columns of a row.
	UpdateDocument(row *domain.DocumentRow) error

	// DeleteDocument removes a row and its full-text row; links and
	// training cascade.
	DeleteDocument(id int64) error

	// LookupStream finds a stream by (entity, rel_path).
	LookupStream(entity, relPath string) (*domain.StreamRow, error)

	// InsertStream inserts a row with its explicit ID. Returns false on conflict.
	InsertStream(row *domain.StreamRow) (bool, error)

	// UpdateStream rewrites the content-derived columns of a row.
	UpdateStream(row *domain.StreamRow) error

	// DeleteStream removes a row; its links cascade.
	DeleteStream(id int64) error

	// DocumentIDByPath returns the row ID of (entity, rel_path).
	// Returns domain.ErrNotFound if absent.
	DocumentIDByPath(entity, relPath string) (int64, error)

	// UpsertFullText writes the full-text row aligned to a document row.
	UpsertFullText(entry domain.FullTextEntry) error

	// HasFullText reports whether the full-text row for rowID exists.
	HasFullText(rowID int64) (bool, error)

	// DeleteFullText removes the full-text row with the given rowid.
	DeleteFullText(rowID int64) error

	// DeleteOrphanedFullText removes full-text rows whose document row
	// is gone. Returns the number removed.
	DeleteOrphanedFullText() (int64, error)

	// InsertLink adds a stream->document link. Returns false if present.
	InsertLink(link domain.Link) (bool, error)

	// DeleteLinksForStream removes the stream's links to documents not
	// in keep. Returns the number removed.
	DeleteLinksForStream(streamID int64, keep []int64) (int64, error)

	// RecordDedup appends a ledger entry. Returns false if the digest
	// was already recorded.
	RecordDedup(entry domain.DedupEntry) (bool, error)

	// UpsertTraining writes the classifier feedback row of a document.
	UpsertTraining(entry domain.TrainingEntry) error

	Commit() error
	Rollback() error
}

// DedupLedger reads the append-only dedup ledger.
type DedupLedger interface {
	// Lookup returns the first-seen entry for a digest.
	// Returns domain.ErrNotFound if the digest is unknown.
	Lookup(ctx context.Context, hash string) (*domain.DedupEntry, error)

	// List returns ledger entries, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.DedupEntry, error)
}

// ScanRunStore persists indexer run history.
type ScanRunStore interface {
	// Save records a finished run.
	Save(ctx context.Context, report *domain.ScanReport) error

	// List returns recent runs, most recent first.
	List(ctx context.Context, limit int) ([]domain.ScanReport, error)
}

// RunLock serialises indexer runs across processes.
type RunLock interface {
	// TryLock acquires the lock without blocking. Returns
	// domain.ErrIndexBusy if another run holds it.
	TryLock() error

	// Unlock releases the lock.
	Unlock() error
}
