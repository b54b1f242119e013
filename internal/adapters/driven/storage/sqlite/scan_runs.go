package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

// scanRunStore implements driven.ScanRunStore.
type scanRunStore struct {
	store *Store
}

var _ driven.ScanRunStore = (*scanRunStore)(nil)

// Save records a finished run. Saving the same run ID again replaces it.
func (s *scanRunStore) Save(ctx context.Context, report *domain.ScanReport) error {
	if report == nil || report.RunID == "" {
		return domain.ErrInvalidInput
	}

	failures := report.Failures
	if failures == nil {
		failures = []domain.RecordFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, entity, started_at, ended_at, processed, inserted, updated,
			skipped, failed, deleted, linked, failures_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity = excluded.entity,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			processed = excluded.processed,
			inserted = excluded.inserted,
			updated = excluded.updated,
			skipped = excluded.skipped,
			failed = excluded.failed,
			deleted = excluded.deleted,
			linked = excluded.linked,
			failures_json = excluded.failures_json
	`, report.RunID, nullString(report.Entity),
		formatTime(report.StartedAt), formatTime(report.EndedAt),
		report.Processed, report.Inserted, report.Updated, report.Skipped,
		report.Failed, report.Deleted, report.Linked, string(failuresJSON))
	if err != nil {
		return fmt.Errorf("saving scan run: %w", err)
	}
	return nil
}

// List returns recent runs, most recent first.
func (s *scanRunStore) List(ctx context.Context, limit int) ([]domain.ScanReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, COALESCE(entity, ''), started_at, ended_at, processed, inserted, updated,
			skipped, failed, deleted, linked, failures_json
		FROM scan_runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scan runs: %w", err)
	}
	defer rows.Close()

	var reports []domain.ScanReport //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.ScanReport
		var startedAt, endedAt, failuresJSON string
		if err := rows.Scan(&r.RunID, &r.Entity, &startedAt, &endedAt, &r.Processed, &r.Inserted,
			&r.Updated, &r.Skipped, &r.Failed, &r.Deleted, &r.Linked, &failuresJSON); err != nil {
			return nil, fmt.Errorf("scanning scan run: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		r.EndedAt = parseTime(endedAt)
		if err := json.Unmarshal([]byte(failuresJSON), &r.Failures); err != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scan runs: %w", err)
	}
	return reports, nil
}
