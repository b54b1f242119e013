package driving

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// DedupService answers "have we seen this content before".
type DedupService interface {
	// Check returns the first-seen entry for a digest string.
	// Returns domain.ErrNotFound if the digest is new.
	Check(ctx context.Context, hash string) (*domain.DedupEntry, error)

	// CheckFile hashes a file and checks its digest.
	CheckFile(ctx context.Context, path string) (*domain.DedupEntry, string, error)

	// List returns ledger entries, oldest first.
	List(ctx context.Context, limit int) ([]domain.DedupEntry, error)
}
