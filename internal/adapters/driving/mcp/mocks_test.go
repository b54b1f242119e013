package mcp

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error

	query string
	opts  domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.query = query
	m.opts = opts
	return m.results, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	details *driving.DocumentDetails
	stats   *domain.CatalogStats
	runs    []domain.ScanReport
	err     error

	key   string
	limit int
}

func (m *mockDocumentService) Show(_ context.Context, key string) (*driving.DocumentDetails, error) {
	m.key = key
	return m.details, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.CatalogStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Runs(_ context.Context, limit int) ([]domain.ScanReport, error) {
	m.limit = limit
	return m.runs, m.err
}

// mockDedupService is a mock implementation of driving.DedupService.
type mockDedupService struct {
	entry *domain.DedupEntry
	err   error
}

func (m *mockDedupService) Check(_ context.Context, _ string) (*domain.DedupEntry, error) {
	return m.entry, m.err
}

func (m *mockDedupService) CheckFile(_ context.Context, _ string) (*domain.DedupEntry, string, error) {
	return m.entry, "", m.err
}

func (m *mockDedupService) List(_ context.Context, _ int) ([]domain.DedupEntry, error) {
	return nil, m.err
}
