package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
)

func TestDedupService(t *testing.T) {
	f := newIndexFixture(t)
	first := f.writeDocument(t, "jro-expense", "receipt", "receipt bytes")
	f.writeDocument(t, "jro-expense", "hotel", "hotel bytes")
	f.index(t, domain.IndexOptions{})

	svc := NewDedupService(f.store.Ledger(), filesystem.NewStore())
	ctx := context.Background()
	known := digest.Of([]byte("receipt bytes")).String()

	t.Run("known digest", func(t *testing.T) {
		entry, err := svc.Check(ctx, "  "+known+"\n")
		require.NoError(t, err)
		assert.Equal(t, first.DocumentID, entry.SourceID)
		assert.True(t, fixedNow.Equal(entry.FirstSeen))
	})

	t.Run("unknown digest", func(t *testing.T) {
		_, err := svc.Check(ctx, digest.Of([]byte("never seen")).String())
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("malformed digest", func(t *testing.T) {
		_, err := svc.Check(ctx, "md5:abc")
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.True(t, errors.Is(err, domain.ErrInvalidDigest))
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "copy.pdf")
		require.NoError(t, os.WriteFile(path, []byte("receipt bytes"), 0o644))

		entry, hash, err := svc.CheckFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, known, hash)
		assert.Equal(t, first.DocumentID, entry.SourceID)
	})

	t.Run("new file still reports its digest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "new.pdf")
		require.NoError(t, os.WriteFile(path, []byte("brand new"), 0o644))

		_, hash, err := svc.CheckFile(ctx, path)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.Equal(t, digest.Of([]byte("brand new")).String(), hash)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := svc.CheckFile(ctx, filepath.Join(t.TempDir(), "absent"))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("list", func(t *testing.T) {
		entries, err := svc.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		entries, err = svc.List(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
