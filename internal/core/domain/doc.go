// Package domain defines the core entities of the archive repository.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: the metadata sidecar written beside every content file
//   - Origin: source-specific provenance (mail, chat, scan, other)
//   - DocumentRow, StreamRow, Link: catalog projections of records
//   - DedupEntry: first-seen ledger entry for a content digest
//   - ScanReport: outcome counts of one indexer run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
