// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ContentStore: durable, atomic file placement under the repository root
//   - Catalog: the relational projection of sidecars (metadata.db + fts.db)
//   - DedupLedger: append-only first-seen digests
//   - ScanRunStore: history of indexer runs
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
//   - RunLock: serialises indexer runs; nil disables locking
//   - IndexMetrics / WriteMetrics: nil disables instrumentation
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
