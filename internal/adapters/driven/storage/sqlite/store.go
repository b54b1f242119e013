package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

// Catalog file names inside the index directory.
const (
	MetadataFile = "metadata.db"
	FullTextFile = "fts.db"
)

// ftsSchema is the attached full-text database's schema name.
const ftsSchema = "fts"

// timeLayout is used for every timestamp column.
const timeLayout = time.RFC3339

// Store is the catalog: metadata.db with fts.db attached on the same
// connection, so a record's catalog row and full-text row commit in one
// transaction. Sub-stores expose the port interfaces.
type Store struct {
	db      *sql.DB
	path    string
	ftsPath string
}

// NewStore opens (creating if needed) the catalog in indexDir.
func NewStore(indexDir string) (*Store, error) {
	if indexDir == "" {
		return nil, errors.New("index directory is required")
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(indexDir, MetadataFile)
	ftsPath := filepath.Join(indexDir, FullTextFile)

	// Rollback journal rather than WAL: commits spanning the attached
	// database are only atomic with a super-journal.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The attachment lives on the connection, so there must only be one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("ATTACH DATABASE ? AS "+ftsSchema, ftsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("attaching full-text database: %w", err)
	}

	s := &Store{
		db:      db,
		path:    dbPath,
		ftsPath: ftsPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.ensureFullText(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Remove deletes the catalog files in indexDir. The catalog is a
// projection of the sidecars, so this loses nothing.
func Remove(indexDir string) error {
	var errs []error
	for _, name := range []string{MetadataFile, FullTextFile} {
		for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
			err := os.Remove(filepath.Join(indexDir, name+suffix))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the metadata database file path.
func (s *Store) Path() string {
	return s.path
}

// FullTextPath returns the full-text database file path.
func (s *Store) FullTextPath() string {
	return s.ftsPath
}

// Catalog returns a Catalog interface backed by this store.
func (s *Store) Catalog() driven.Catalog {
	return &catalog{store: s}
}

// Ledger returns a DedupLedger interface backed by this store.
func (s *Store) Ledger() driven.DedupLedger {
	return &ledger{store: s}
}

// ScanRunStore returns a ScanRunStore interface backed by this store.
func (s *Store) ScanRunStore() driven.ScanRunStore {
	return &scanRunStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_catalog.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.execMigration(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) execMigration(script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.Exec(script); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureFullText creates the full-text table. It is not a migration
// because fts.db may be deleted independently of metadata.db.
func (s *Store) ensureFullText() error {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS ` + ftsSchema + `.documents_fts
		USING fts5(filename, search_content, tokenize = 'porter unicode61')`)
	if err != nil {
		return fmt.Errorf("creating full-text table: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// formatTime formats t as UTC RFC3339.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses an RFC3339 column. Returns zero time on error.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// unixNano stores t as nanoseconds since the epoch, zero for the zero time.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullFloat returns nil for a nil pointer.
func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// nullBool stores a *bool as 0/1/NULL.
func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// emptyJSON substitutes "{}" for an empty JSON column.
func emptyJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
