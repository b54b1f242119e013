// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The Writer persists content and sidecars; the Indexer projects
// sidecars into the catalog. The remaining services read the catalog
// back or resolve configuration.
package services
