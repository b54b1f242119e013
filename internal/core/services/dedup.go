package services

import (
	"context"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

// Ensure DedupService implements the interface.
var _ driving.DedupService = (*DedupService)(nil)

// DedupService answers first-seen queries from the dedup ledger.
type DedupService struct {
	ledger  driven.DedupLedger
	content driven.ContentStore
}

// NewDedupService creates a new dedup service.
func NewDedupService(ledger driven.DedupLedger, content driven.ContentStore) *DedupService {
	return &DedupService{ledger: ledger, content: content}
}

// Check returns the first-seen entry for a digest.
func (s *DedupService) Check(ctx context.Context, hash string) (*domain.DedupEntry, error) {
	d, err := digest.Parse(strings.TrimSpace(hash))
	if err != nil {
		return nil, domain.NewValidationError("hash", hash, err)
	}
	return s.ledger.Lookup(ctx, d.String())
}

// CheckFile hashes the file at path and checks its digest. The digest
// is returned even when the ledger has no entry.
func (s *DedupService) CheckFile(ctx context.Context, path string) (*domain.DedupEntry, string, error) {
	hash, _, err := s.content.Hash(path)
	if err != nil {
		return nil, "", err
	}
	entry, err := s.Check(ctx, hash)
	return entry, hash, err
}

// List returns ledger entries, oldest first.
func (s *DedupService) List(ctx context.Context, limit int) ([]domain.DedupEntry, error) {
	return s.ledger.List(ctx, limit)
}
