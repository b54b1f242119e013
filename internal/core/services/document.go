package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/layout"
	"github.com/custodia-labs/archivist/internal/core/metadata"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// defaultRunsLimit applies when Runs is called without a limit.
const defaultRunsLimit = 10

// DocumentService reads catalogued entries back, joined with their sidecars.
type DocumentService struct {
	resolver  *layout.Resolver
	content   driven.ContentStore
	catalog   driven.Catalog
	runs      driven.ScanRunStore
	validator *metadata.Validator
}

// NewDocumentService creates a new document service.
func NewDocumentService(
	resolver *layout.Resolver,
	content driven.ContentStore,
	catalog driven.Catalog,
	runs driven.ScanRunStore,
) (*DocumentService, error) {
	validator, err := metadata.NewValidator()
	if err != nil {
		return nil, err
	}
	return &DocumentService{
		resolver:  resolver,
		content:   content,
		catalog:   catalog,
		runs:      runs,
		validator: validator,
	}, nil
}

// Show resolves a document ID, content path or row ID. Documents are
// tried before streams.
func (s *DocumentService) Show(ctx context.Context, key string) (*driving.DocumentDetails, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.NewValidationError("key", key, fmt.Errorf("%w: required", domain.ErrInvalidInput))
	}

	doc, err := s.catalog.FindDocument(ctx, key)
	switch {
	case err == nil:
		return s.documentDetails(ctx, doc)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	stream, err := s.catalog.FindStream(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%q: %w", key, domain.ErrNotFound)
		}
		return nil, err
	}
	return s.streamDetails(ctx, stream)
}

func (s *DocumentService) documentDetails(ctx context.Context, doc *domain.DocumentRow) (*driving.DocumentDetails, error) {
	details := &driving.DocumentDetails{Kind: domain.EntryDocument, Document: doc}
	if err := s.attachFiles(details, doc.Entity, doc.RelPath, doc.MetaRelPath); err != nil {
		return nil, err
	}

	links, err := s.catalog.LinksForDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		details.Linked = append(details.Linked, l.StreamID)
	}
	return details, nil
}

func (s *DocumentService) streamDetails(ctx context.Context, stream *domain.StreamRow) (*driving.DocumentDetails, error) {
	details := &driving.DocumentDetails{Kind: domain.EntryStream, Stream: stream}
	if err := s.attachFiles(details, stream.Entity, stream.RelPath, stream.MetaRelPath); err != nil {
		return nil, err
	}

	links, err := s.catalog.LinksForStream(ctx, stream.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		details.Linked = append(details.Linked, l.DocumentID)
	}
	return details, nil
}

// attachFiles resolves the entry's paths and reads its sidecar. An
// unreadable sidecar leaves Record nil.
func (s *DocumentService) attachFiles(details *driving.DocumentDetails, entity, relPath, metaRelPath string) error {
	contentPath, err := s.resolver.ContentPath(entity, relPath)
	if err != nil {
		return err
	}
	entityRoot, err := s.resolver.EntityRoot(entity)
	if err != nil {
		return err
	}
	if err := layout.CheckRelative("meta_rel_path", metaRelPath); err != nil {
		return err
	}
	details.ContentPath = contentPath
	details.MetadataPath = filepath.Join(entityRoot, filepath.FromSlash(metaRelPath))

	data, err := s.content.ReadFile(details.MetadataPath)
	if err != nil {
		logger.Warn("reading sidecar %s: %v", details.MetadataPath, err)
		return nil
	}
	rec, err := s.validator.Decode(data)
	if err != nil {
		logger.Warn("decoding sidecar %s: %v", details.MetadataPath, err)
		return nil
	}
	details.Record = rec
	return nil
}

// Stats summarises the catalog.
func (s *DocumentService) Stats(ctx context.Context) (*domain.CatalogStats, error) {
	return s.catalog.Stats(ctx)
}

// Runs returns recent indexer runs, most recent first.
func (s *DocumentService) Runs(ctx context.Context, limit int) ([]domain.ScanReport, error) {
	if s.runs == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	return s.runs.List(ctx, limit)
}
