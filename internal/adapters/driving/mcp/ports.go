package mcp

import (
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
type Ports struct {
	// Search provides search capabilities.
	Search driving.SearchService

	// Document reads catalog entries, stats and run history.
	Document driving.DocumentService

	// Dedup answers first-seen queries.
	Dedup driving.DedupService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	// Document and Dedup are optional; their tools report unavailability.
	return nil
}
