package services

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/archivist/internal/core/domain"
)

func newTestDocumentService(t *testing.T, f *indexFixture) *DocumentService {
	t.Helper()
	svc, err := NewDocumentService(f.resolver, filesystem.NewStore(), f.store.Catalog(), f.store.ScanRunStore())
	require.NoError(t, err)
	return svc
}

func TestDocumentService_Show(t *testing.T) {
	f := newIndexFixture(t)
	doc := f.writeDocument(t, "jro-expense", "receipt", "receipt bytes")
	rel, err := f.resolver.RelToEntity("jro", doc.ContentPath)
	require.NoError(t, err)
	stream := f.writeStream(t, "jro", "general", "filed "+rel)
	f.index(t, domain.IndexOptions{})

	svc := newTestDocumentService(t, f)
	ctx := context.Background()

	docRow, err := f.store.Catalog().FindDocument(ctx, doc.DocumentID)
	require.NoError(t, err)
	streamRow, err := f.store.Catalog().FindStream(ctx, stream.DocumentID)
	require.NoError(t, err)

	for _, key := range []string{doc.DocumentID, rel, "jro/" + rel, strconv.FormatInt(docRow.ID, 10)} {
		t.Run("document by "+key, func(t *testing.T) {
			details, err := svc.Show(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, domain.EntryDocument, details.Kind)
			require.NotNil(t, details.Document)
			assert.Nil(t, details.Stream)
			assert.Equal(t, doc.ContentPath, details.ContentPath)
			assert.Equal(t, doc.MetadataPath, details.MetadataPath)
			require.NotNil(t, details.Record)
			assert.Equal(t, doc.DocumentID, details.Record.ID)
			assert.Equal(t, []int64{streamRow.ID}, details.Linked)
		})
	}

	t.Run("stream", func(t *testing.T) {
		details, err := svc.Show(ctx, stream.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, domain.EntryStream, details.Kind)
		require.NotNil(t, details.Stream)
		assert.Equal(t, stream.ContentPath, details.ContentPath)
		assert.Equal(t, []int64{docRow.ID}, details.Linked)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := svc.Show(ctx, "mail=nope/2025-01-01T00:00:00Z/sha256:00")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := svc.Show(ctx, " ")
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("unreadable sidecar", func(t *testing.T) {
		require.NoError(t, os.Remove(doc.MetadataPath))
		details, err := svc.Show(ctx, doc.DocumentID)
		require.NoError(t, err)
		assert.Nil(t, details.Record)
		assert.Equal(t, doc.MetadataPath, details.MetadataPath)
	})
}

func TestDocumentService_StatsAndRuns(t *testing.T) {
	f := newIndexFixture(t)
	f.writeDocument(t, "jro-expense", "receipt", "receipt bytes")
	first := f.index(t, domain.IndexOptions{})
	second := f.index(t, domain.IndexOptions{})

	svc := newTestDocumentService(t, f)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, map[string]int{"jro": 1}, stats.ByEntity)

	runs, err := svc.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].RunID, runs[1].RunID}
	assert.ElementsMatch(t, []string{first.RunID, second.RunID}, ids)

	runs, err = svc.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
