package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

// ledger implements driven.DedupLedger.
type ledger struct {
	store *Store
}

var _ driven.DedupLedger = (*ledger)(nil)

// Lookup returns the first-seen entry for a digest.
func (l *ledger) Lookup(ctx context.Context, hash string) (*domain.DedupEntry, error) {
	var e domain.DedupEntry
	var firstSeen string
	err := l.store.db.QueryRowContext(ctx,
		`SELECT hash, source_id, first_seen FROM dedup WHERE hash = ?`, hash).
		Scan(&e.Hash, &e.SourceID, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up dedup entry: %w", err)
	}
	e.FirstSeen = parseTime(firstSeen)
	return &e, nil
}

// List returns ledger entries, oldest first.
func (l *ledger) List(ctx context.Context, limit int) ([]domain.DedupEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT hash, source_id, first_seen FROM dedup
		ORDER BY first_seen, hash
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dedup ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.DedupEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.DedupEntry
		var firstSeen string
		if err := rows.Scan(&e.Hash, &e.SourceID, &firstSeen); err != nil {
			return nil, fmt.Errorf("scanning dedup entry: %w", err)
		}
		e.FirstSeen = parseTime(firstSeen)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dedup ledger: %w", err)
	}
	return entries, nil
}
