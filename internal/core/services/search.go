package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService runs full-text queries over the catalog.
type SearchService struct {
	catalog      driven.Catalog
	defaultLimit int
}

// NewSearchService creates a new search service.
func NewSearchService(catalog driven.Catalog, defaultLimit int) *SearchService {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultSettings().SearchDefaultLimit
	}
	return &SearchService{catalog: catalog, defaultLimit: defaultLimit}
}

// Search runs a ranked full-text query. An empty query lists the most
// recent documents matching the filters.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	if opts.Limit <= 0 {
		opts.Limit = s.defaultLimit
	}

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, listing recent documents")
		results, err := s.catalog.Recent(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing recent documents: %w", err)
		}
		return results, nil
	}

	match := query
	if !opts.Raw {
		match = QuoteQuery(query)
	}
	if match == "" {
		return []domain.SearchResult{}, nil
	}
	logger.Debug("Match expression: %s, limit: %d", match, opts.Limit)

	results, err := s.catalog.Search(ctx, match, opts)
	if err != nil {
		if opts.Raw {
			return nil, fmt.Errorf("%w: query %q: %v", domain.ErrInvalidInput, query, err)
		}
		return nil, fmt.Errorf("search: %w", err)
	}

	logger.Info("Final results: %d", len(results))
	return results, nil
}

// QuoteQuery turns free text into an FTS5 expression that matches every
// term, with query syntax characters taken literally.
func QuoteQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.Trim(f, `"`) == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}
