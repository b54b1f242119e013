package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		mockSearch := &mockSearchService{
			results: []domain.SearchResult{{
				Document: domain.DocumentRow{
					ID:         42,
					DocumentID: "mail=jro-expense/2025-10-23T14:05:09Z/sha256:ab",
					Entity:     "jro",
					Workflow:   "jro-expense",
					Date:       "2025-10-23",
					RelPath:    "workflows/jro-expense/2025/2025-10-23-mail-receipt.pdf",
				},
				Score:   -1.5,
				Snippet: "hotel [receipt]",
			}},
		}

		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		input := SearchInput{Query: "receipt", Entity: "jro", Workflow: "jro-expense", Limit: 5}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		got := output.Results[0]
		assert.Equal(t, "mail=jro-expense/2025-10-23T14:05:09Z/sha256:ab", got.DocumentID)
		assert.Equal(t, int64(42), got.RowID)
		assert.Equal(t, "archive://entries/42", got.URI)
		assert.Equal(t, "workflows/jro-expense/2025/2025-10-23-mail-receipt.pdf", got.Path)
		assert.Equal(t, "hotel [receipt]", got.Snippet)
		assert.InDelta(t, -1.5, got.Score, 1e-9)

		assert.Equal(t, "receipt", mockSearch.query)
		assert.Equal(t, domain.SearchOptions{Limit: 5, Entity: "jro", Workflow: "jro-expense"}, mockSearch.opts)
	})

	t.Run("default limit is 10", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, 10, mockSearch.opts.Limit)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{err: errors.New("search failed")}})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleShow(t *testing.T) {
	ctx := context.Background()

	t.Run("document", func(t *testing.T) {
		docs := &mockDocumentService{details: &driving.DocumentDetails{
			Kind: domain.EntryDocument,
			Document: &domain.DocumentRow{
				ID: 7, DocumentID: "mail=jro-expense/x", Entity: "jro", Hash: "sha256:ab",
			},
			ContentPath:  "/archive/entities/jro/workflows/a.pdf",
			MetadataPath: "/archive/entities/jro/metadata/workflows/a.pdf.json",
			Linked:       []int64{9},
			Record:       &domain.Record{ID: "mail=jro-expense/x", Entity: "jro", Source: "mail"},
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Document: docs})
		require.NoError(t, err)

		_, out, err := server.handleShow(ctx, nil, ShowInput{Key: "mail=jro-expense/x"})
		require.NoError(t, err)
		assert.Equal(t, "mail=jro-expense/x", docs.key)
		assert.Equal(t, string(domain.EntryDocument), out.Kind)
		assert.Equal(t, int64(7), out.RowID)
		assert.Equal(t, "sha256:ab", out.Hash)
		assert.Equal(t, []int64{9}, out.Linked)
		require.NotNil(t, out.Record)
		assert.Equal(t, "mail", out.Record["source"])
	})

	t.Run("stream without sidecar", func(t *testing.T) {
		docs := &mockDocumentService{details: &driving.DocumentDetails{
			Kind:   domain.EntryStream,
			Stream: &domain.StreamRow{ID: 9, DocumentID: "slack=general/y", Entity: "jro"},
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Document: docs})
		require.NoError(t, err)

		_, out, err := server.handleShow(ctx, nil, ShowInput{Key: "9"})
		require.NoError(t, err)
		assert.Equal(t, int64(9), out.RowID)
		assert.Equal(t, "slack=general/y", out.DocumentID)
		assert.Nil(t, out.Record)
	})

	t.Run("not found", func(t *testing.T) {
		docs := &mockDocumentService{err: domain.ErrNotFound}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Document: docs})
		require.NoError(t, err)

		_, _, err = server.handleShow(ctx, nil, ShowInput{Key: "nope"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServer_handleDedupCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("seen", func(t *testing.T) {
		dedup := &mockDedupService{entry: &domain.DedupEntry{
			Hash:      "sha256:ab",
			SourceID:  "mail=jro-expense/x",
			FirstSeen: time.Date(2025, 10, 24, 8, 30, 0, 0, time.UTC),
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Dedup: dedup})
		require.NoError(t, err)

		_, out, err := server.handleDedupCheck(ctx, nil, DedupInput{Hash: "sha256:ab"})
		require.NoError(t, err)
		assert.True(t, out.Seen)
		assert.Equal(t, "mail=jro-expense/x", out.SourceID)
		assert.Equal(t, "2025-10-24T08:30:00Z", out.FirstSeen)
	})

	t.Run("unseen is not an error", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Dedup: &mockDedupService{err: domain.ErrNotFound}})
		require.NoError(t, err)

		_, out, err := server.handleDedupCheck(ctx, nil, DedupInput{Hash: "sha256:cd"})
		require.NoError(t, err)
		assert.False(t, out.Seen)
		assert.Equal(t, "sha256:cd", out.Hash)
	})

	t.Run("invalid digest", func(t *testing.T) {
		invalid := domain.NewValidationError("hash", "md5:x", domain.ErrInvalidDigest)
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Dedup: &mockDedupService{err: invalid}})
		require.NoError(t, err)

		_, _, err = server.handleDedupCheck(ctx, nil, DedupInput{Hash: "md5:x"})
		assert.ErrorIs(t, err, domain.ErrInvalidDigest)
	})
}
