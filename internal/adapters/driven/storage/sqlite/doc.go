// Package sqlite implements the catalog on SQLite.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One Store serves several port
// interfaces through a single connection:
//
//   - Catalog: documents, streams, links, training and full-text rows
//   - DedupLedger: the append-only digest ledger
//   - ScanRunStore: indexer run history
//
// # Files
//
// The catalog lives in {root}/indexes/metadata.db. The full-text index lives
// in {root}/indexes/fts.db and is attached to the same connection as schema
// "fts". Its rowids equal documents.id.
//
// # Schema
//
// metadata.db is managed through versioned migrations stored in the
// migrations/ directory. The full-text table is created on open, so deleting
// fts.db on its own is recoverable: the next index run repopulates it.
//
// # Thread Safety
//
// The pool holds exactly one connection. Callers must not issue queries on
// the Store while they hold an open CatalogTx from the same Store.
package sqlite
