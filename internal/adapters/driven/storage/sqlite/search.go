package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// defaultSearchLimit applies when opts.Limit is not positive.
const defaultSearchLimit = 20

// Search runs an FTS5 match expression joined back to document rows.
// Lower bm25 scores rank higher.
func (c *catalog) Search(ctx context.Context, match string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	where, args := filterClause(opts)
	query := `
		SELECT ` + qualify("d", documentColumns) + `,
			bm25(documents_fts) AS score,
			snippet(documents_fts, 1, '[', ']', '…', 12)
		FROM ` + ftsSchema + `.documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?` + where + `
		ORDER BY score, d.id
		LIMIT ?`

	args = append([]any{match}, args...)
	args = append(args, limitOrDefault(opts.Limit))

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.SearchResult
		doc, err := scanDocument(scanWith(rows, &r.Score, &r.Snippet))
		if err != nil {
			return nil, err
		}
		r.Document = *doc
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// Recent lists the newest documents matching the filters.
func (c *catalog) Recent(ctx context.Context, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	where, args := filterClause(opts)
	query := `
		SELECT ` + qualify("d", documentColumns) + `
		FROM documents d
		WHERE 1 = 1` + where + `
		ORDER BY d.date DESC, d.id
		LIMIT ?`
	args = append(args, limitOrDefault(opts.Limit))

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recent documents: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.SearchResult{Document: *doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent documents: %w", err)
	}
	return results, nil
}

func filterClause(opts domain.SearchOptions) (string, []any) {
	var b strings.Builder
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		b.WriteString(" AND d." + column + " = ?")
		args = append(args, value)
	}
	add("entity", opts.Entity)
	add("workflow", opts.Workflow)
	add("source", opts.Source)
	add("category", opts.Category)
	return b.String(), args
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return limit
}

// qualify prefixes every column in a comma-separated list.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// extraScanner appends trailing destinations to a row scan.
type extraScanner struct {
	rows  rowScanner
	extra []any
}

func (s extraScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.extra...)...)
}

func scanWith(rows rowScanner, extra ...any) rowScanner {
	return extraScanner{rows: rows, extra: extra}
}
