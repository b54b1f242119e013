package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

const documentColumns = `id, document_id, entity, date, filename, rel_path, meta_rel_path, hash, size,
	type, source, workflow, category, confidence, origin_json, structured_json, indexed_at, content_mtime`

const streamColumns = `id, document_id, entity, kind, channel_or_mailbox, date, rel_path, meta_rel_path,
	hash, origin_json, indexed_at, size, content_mtime`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ==================== Catalog ====================

// catalog implements driven.Catalog.
type catalog struct {
	store *Store
}

var _ driven.Catalog = (*catalog)(nil)

// Begin opens a transaction scope.
func (c *catalog) Begin(ctx context.Context) (driven.CatalogTx, error) {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &catalogTx{ctx: ctx, tx: tx}, nil
}

// GetDocument returns a document row by row ID.
func (c *catalog) GetDocument(ctx context.Context, id int64) (*domain.DocumentRow, error) {
	row := c.store.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// FindDocument looks a document up by document ID, content path or row ID.
func (c *catalog) FindDocument(ctx context.Context, key string) (*domain.DocumentRow, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE document_id = ? OR rel_path = ? OR entity || '/' || rel_path = ?
		ORDER BY id LIMIT 1
	`, key, key, key)
	doc, err := scanDocument(row)
	if errors.Is(err, domain.ErrNotFound) {
		if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
			return c.GetDocument(ctx, id)
		}
	}
	return doc, err
}

// GetStream returns a stream row by row ID.
func (c *catalog) GetStream(ctx context.Context, id int64) (*domain.StreamRow, error) {
	row := c.store.db.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE id = ?`, id)
	return scanStream(row)
}

// FindStream looks a stream up by document ID, content path or row ID.
func (c *catalog) FindStream(ctx context.Context, key string) (*domain.StreamRow, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE document_id = ? OR rel_path = ? OR entity || '/' || rel_path = ?
		ORDER BY id LIMIT 1
	`, key, key, key)
	stream, err := scanStream(row)
	if errors.Is(err, domain.ErrNotFound) {
		if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
			return c.GetStream(ctx, id)
		}
	}
	return stream, err
}

// ListDocuments returns document rows ordered by ID.
func (c *catalog) ListDocuments(ctx context.Context, entity string) ([]domain.DocumentRow, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE (? = '' OR entity = ?)
		ORDER BY id
	`, entity, entity)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentRow //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ListStreams returns stream rows ordered by ID.
func (c *catalog) ListStreams(ctx context.Context, entity string) ([]domain.StreamRow, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE (? = '' OR entity = ?)
		ORDER BY id
	`, entity, entity)
	if err != nil {
		return nil, fmt.Errorf("querying streams: %w", err)
	}
	defer rows.Close()

	var streams []domain.StreamRow //nolint:prealloc // size unknown from query
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, *stream)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating streams: %w", err)
	}
	return streams, nil
}

// Entries lists every catalog row, optionally for one entity.
func (c *catalog) Entries(ctx context.Context, entity string) ([]domain.CatalogEntry, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT 'document', id, entity, meta_rel_path, hash, size, content_mtime
		FROM documents WHERE (? = '' OR entity = ?)
		UNION ALL
		SELECT 'stream', id, entity, meta_rel_path, hash, size, content_mtime
		FROM streams WHERE (? = '' OR entity = ?)
		ORDER BY 2
	`, entity, entity, entity, entity)
	if err != nil {
		return nil, fmt.Errorf("querying catalog entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.CatalogEntry
		var kind string
		var mtime int64
		if err := rows.Scan(&kind, &e.ID, &e.Entity, &e.MetaRelPath, &e.Hash, &e.Size, &mtime); err != nil {
			return nil, fmt.Errorf("scanning catalog entry: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.ModTime = fromUnixNano(mtime)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog entries: %w", err)
	}
	return entries, nil
}

// LinksForStream returns the documents a stream references.
func (c *catalog) LinksForStream(ctx context.Context, streamID int64) ([]domain.Link, error) {
	return c.queryLinks(ctx, `SELECT stream_id, document_id FROM links WHERE stream_id = ? ORDER BY document_id`, streamID)
}

// LinksForDocument returns the streams that reference a document.
func (c *catalog) LinksForDocument(ctx context.Context, documentID int64) ([]domain.Link, error) {
	return c.queryLinks(ctx, `SELECT stream_id, document_id FROM links WHERE document_id = ? ORDER BY stream_id`, documentID)
}

func (c *catalog) queryLinks(ctx context.Context, query string, id int64) ([]domain.Link, error) {
	rows, err := c.store.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []domain.Link //nolint:prealloc // size unknown from query
	for rows.Next() {
		var l domain.Link
		if err := rows.Scan(&l.StreamID, &l.DocumentID); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}
	return links, nil
}

// Stats summarises the catalog.
func (c *catalog) Stats(ctx context.Context) (*domain.CatalogStats, error) {
	stats := &domain.CatalogStats{
		ByEntity:   make(map[string]int),
		ByWorkflow: make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM streams", &stats.Streams},
		{"SELECT COUNT(*) FROM links", &stats.Links},
		{"SELECT COUNT(*) FROM dedup", &stats.Dedup},
		{"SELECT COUNT(*) FROM training", &stats.Training},
		{"SELECT COUNT(*) FROM " + ftsSchema + ".documents_fts", &stats.FullText},
	}
	for _, q := range counts {
		if err := c.store.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}

	if err := c.groupCounts(ctx, `
		SELECT entity, COUNT(*) FROM (
			SELECT entity FROM documents UNION ALL SELECT entity FROM streams
		) GROUP BY entity
	`, stats.ByEntity); err != nil {
		return nil, err
	}
	if err := c.groupCounts(ctx, `
		SELECT workflow, COUNT(*) FROM documents WHERE workflow IS NOT NULL GROUP BY workflow
	`, stats.ByWorkflow); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *catalog) groupCounts(ctx context.Context, query string, dest map[string]int) error {
	rows, err := c.store.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("grouping rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scanning group: %w", err)
		}
		dest[key] = n
	}
	return rows.Err()
}

// CheckAlignment compares full-text rows with document rows.
func (c *catalog) CheckAlignment(ctx context.Context) (*domain.AlignmentReport, error) {
	missing, err := c.queryIDs(ctx, `
		SELECT id FROM documents
		WHERE id NOT IN (SELECT rowid FROM `+ftsSchema+`.documents_fts)
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	orphaned, err := c.queryIDs(ctx, `
		SELECT rowid FROM `+ftsSchema+`.documents_fts
		WHERE rowid NOT IN (SELECT id FROM documents)
		ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	return &domain.AlignmentReport{MissingFullText: missing, Orphaned: orphaned}, nil
}

func (c *catalog) queryIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := c.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("checking alignment: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==================== Transaction ====================

// catalogTx implements driven.CatalogTx.
type catalogTx struct {
	ctx context.Context
	tx  *sql.Tx
}

var _ driven.CatalogTx = (*catalogTx)(nil)

// LookupDocument finds a document by (entity, rel_path).
func (t *catalogTx) LookupDocument(entity, relPath string) (*domain.DocumentRow, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+documentColumns+` FROM documents WHERE entity = ? AND rel_path = ?`, entity, relPath)
	return scanDocument(row)
}

// DocumentByHash finds the document holding a digest.
func (t *catalogTx) DocumentByHash(hash string) (*domain.DocumentRow, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+documentColumns+` FROM documents WHERE hash = ?`, hash)
	return scanDocument(row)
}

// DocumentIDByPath returns the row ID of (entity, rel_path).
func (t *catalogTx) DocumentIDByPath(entity, relPath string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id FROM documents WHERE entity = ? AND rel_path = ?`, entity, relPath).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("looking up document id: %w", err)
	}
	return id, nil
}

// InsertDocument inserts a row with its explicit ID.
func (t *catalogTx) InsertDocument(row *domain.DocumentRow) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, row.ID, row.DocumentID, row.Entity, row.Date, row.Filename, row.RelPath, row.MetaRelPath,
		row.Hash, row.Size, nullString(row.Type), row.Source, nullString(row.Workflow),
		nullString(row.Category), nullFloat(row.Confidence), emptyJSON(row.OriginJSON),
		emptyJSON(row.StructuredJSON), formatTime(row.IndexedAt), unixNano(row.ModTime))
	if err != nil {
		return false, fmt.Errorf("inserting document: %w", err)
	}
	return affected(res)
}

// UpdateDocument rewrites the content-derived columns of a row.
func (t *catalogTx) UpdateDocument(row *domain.DocumentRow) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE documents SET
			document_id = ?, date = ?, filename = ?, meta_rel_path = ?, hash = ?, size = ?,
			type = ?, source = ?, workflow = ?, category = ?, confidence = ?,
			origin_json = ?, structured_json = ?, indexed_at = ?, content_mtime = ?
		WHERE id = ?
	`, row.DocumentID, row.Date, row.Filename, row.MetaRelPath, row.Hash, row.Size,
		nullString(row.Type), row.Source, nullString(row.Workflow), nullString(row.Category),
		nullFloat(row.Confidence), emptyJSON(row.OriginJSON), emptyJSON(row.StructuredJSON),
		formatTime(row.IndexedAt), unixNano(row.ModTime), row.ID)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}

// DeleteDocument removes a document row and its full-text row.
func (t *catalogTx) DeleteDocument(id int64) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return t.DeleteFullText(id)
}

// LookupStream finds a stream by (entity, rel_path).
func (t *catalogTx) LookupStream(entity, relPath string) (*domain.StreamRow, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+streamColumns+` FROM streams WHERE entity = ? AND rel_path = ?`, entity, relPath)
	return scanStream(row)
}

// InsertStream inserts a row with its explicit ID.
func (t *catalogTx) InsertStream(row *domain.StreamRow) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO streams (`+streamColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, row.ID, row.DocumentID, row.Entity, row.Kind, row.ChannelOrMailbox, row.Date, row.RelPath,
		row.MetaRelPath, row.Hash, emptyJSON(row.OriginJSON), formatTime(row.IndexedAt),
		row.Size, unixNano(row.ModTime))
	if err != nil {
		return false, fmt.Errorf("inserting stream: %w", err)
	}
	return affected(res)
}

// UpdateStream rewrites the content-derived columns of a row.
func (t *catalogTx) UpdateStream(row *domain.StreamRow) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE streams SET
			document_id = ?, kind = ?, channel_or_mailbox = ?, date = ?, meta_rel_path = ?,
			hash = ?, origin_json = ?, indexed_at = ?, size = ?, content_mtime = ?
		WHERE id = ?
	`, row.DocumentID, row.Kind, row.ChannelOrMailbox, row.Date, row.MetaRelPath,
		row.Hash, emptyJSON(row.OriginJSON), formatTime(row.IndexedAt), row.Size,
		unixNano(row.ModTime), row.ID)
	if err != nil {
		return fmt.Errorf("updating stream: %w", err)
	}
	return nil
}

// DeleteStream removes a stream row; links cascade.
func (t *catalogTx) DeleteStream(id int64) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM streams WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting stream: %w", err)
	}
	return nil
}

// UpsertFullText writes the full-text row aligned to a document row.
// FTS5 has no upsert, so the row is replaced.
func (t *catalogTx) UpsertFullText(entry domain.FullTextEntry) error {
	if err := t.DeleteFullText(entry.RowID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO `+ftsSchema+`.documents_fts (rowid, filename, search_content) VALUES (?, ?, ?)`,
		entry.RowID, entry.Filename, entry.SearchContent)
	if err != nil {
		return fmt.Errorf("inserting full-text row: %w", err)
	}
	return nil
}

// HasFullText reports whether a full-text row exists for rowID.
func (t *catalogTx) HasFullText(rowID int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(*) FROM `+ftsSchema+`.documents_fts WHERE rowid = ?`, rowID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking full-text row: %w", err)
	}
	return n > 0, nil
}

// DeleteFullText removes the full-text row with the given rowid.
func (t *catalogTx) DeleteFullText(rowID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM `+ftsSchema+`.documents_fts WHERE rowid = ?`, rowID)
	if err != nil {
		return fmt.Errorf("deleting full-text row: %w", err)
	}
	return nil
}

// DeleteOrphanedFullText removes full-text rows with no document row.
func (t *catalogTx) DeleteOrphanedFullText() (int64, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM `+ftsSchema+`.documents_fts WHERE rowid NOT IN (SELECT id FROM documents)`)
	if err != nil {
		return 0, fmt.Errorf("deleting orphaned full-text rows: %w", err)
	}
	return res.RowsAffected()
}

// InsertLink adds a stream->document link.
func (t *catalogTx) InsertLink(link domain.Link) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`INSERT OR IGNORE INTO links (stream_id, document_id) VALUES (?, ?)`, link.StreamID, link.DocumentID)
	if err != nil {
		return false, fmt.Errorf("inserting link: %w", err)
	}
	return affected(res)
}

// DeleteLinksForStream removes a stream's links except those to keep.
func (t *catalogTx) DeleteLinksForStream(streamID int64, keep []int64) (int64, error) {
	query := `DELETE FROM links WHERE stream_id = ?`
	args := []any{streamID}
	if len(keep) > 0 {
		query += ` AND document_id NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting links: %w", err)
	}
	return res.RowsAffected()
}

// RecordDedup appends a ledger entry.
func (t *catalogTx) RecordDedup(entry domain.DedupEntry) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`INSERT OR IGNORE INTO dedup (hash, source_id, first_seen) VALUES (?, ?, ?)`,
		entry.Hash, entry.SourceID, formatTime(entry.FirstSeen))
	if err != nil {
		return false, fmt.Errorf("recording dedup entry: %w", err)
	}
	return affected(res)
}

// UpsertTraining writes the classifier feedback row of a document.
func (t *catalogTx) UpsertTraining(entry domain.TrainingEntry) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO training (document_id, workflow, suggested_workflow, category, confidence, accepted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			workflow = excluded.workflow,
			suggested_workflow = excluded.suggested_workflow,
			category = excluded.category,
			confidence = excluded.confidence,
			accepted = excluded.accepted
	`, entry.DocumentID, nullString(entry.Workflow), nullString(entry.SuggestedWorkflow),
		nullString(entry.Category), nullFloat(entry.Confidence), nullBool(entry.Accepted))
	if err != nil {
		return fmt.Errorf("saving training entry: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (t *catalogTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction
// is not an error.
func (t *catalogTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// scanDocument scans one document row.
func scanDocument(s rowScanner) (*domain.DocumentRow, error) {
	var d domain.DocumentRow
	var typ, workflow, category sql.NullString
	var confidence sql.NullFloat64
	var indexedAt string
	var mtime int64

	if err := s.Scan(&d.ID, &d.DocumentID, &d.Entity, &d.Date, &d.Filename, &d.RelPath, &d.MetaRelPath,
		&d.Hash, &d.Size, &typ, &d.Source, &workflow, &category, &confidence,
		&d.OriginJSON, &d.StructuredJSON, &indexedAt, &mtime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	d.Type = typ.String
	d.Workflow = workflow.String
	d.Category = category.String
	if confidence.Valid {
		v := confidence.Float64
		d.Confidence = &v
	}
	d.IndexedAt = parseTime(indexedAt)
	d.ModTime = fromUnixNano(mtime)
	return &d, nil
}

// scanStream scans one stream row.
func scanStream(s rowScanner) (*domain.StreamRow, error) {
	var r domain.StreamRow
	var indexedAt string
	var mtime int64

	if err := s.Scan(&r.ID, &r.DocumentID, &r.Entity, &r.Kind, &r.ChannelOrMailbox, &r.Date,
		&r.RelPath, &r.MetaRelPath, &r.Hash, &r.OriginJSON, &indexedAt, &r.Size, &mtime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning stream: %w", err)
	}
	r.IndexedAt = parseTime(indexedAt)
	r.ModTime = fromUnixNano(mtime)
	return &r, nil
}
