package driving

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search runs a ranked full-text query over catalogued documents.
	// An empty query lists the most recent documents.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
