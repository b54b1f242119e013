package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

func TestScanRunStore_SaveAndList(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	runs := store.ScanRunStore()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	older := &domain.ScanReport{
		RunID:     "run-1",
		StartedAt: base,
		EndedAt:   base.Add(2 * time.Second),
		Processed: 3,
		Inserted:  3,
	}
	newer := &domain.ScanReport{
		RunID:     "run-2",
		Entity:    "jro",
		StartedAt: base.Add(time.Hour),
		EndedAt:   base.Add(time.Hour + time.Second),
	}
	newer.Fail("mail=x/2025-01-01T00:00:00Z/sha256:aa", "metadata/a.json", errors.New("bad hash"))

	require.NoError(t, runs.Save(ctx, older))
	require.NoError(t, runs.Save(ctx, newer))

	list, err := runs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "run-2", list[0].RunID, "most recent first")
	assert.Equal(t, "jro", list[0].Entity)
	assert.Equal(t, 1, list[0].Failed)
	require.Len(t, list[0].Failures, 1)
	assert.Equal(t, "bad hash", list[0].Failures[0].Error)
	assert.Equal(t, "metadata/a.json", list[0].Failures[0].Path)

	assert.Equal(t, "run-1", list[1].RunID)
	assert.Empty(t, list[1].Entity)
	assert.Equal(t, 3, list[1].Inserted)
	assert.Empty(t, list[1].Failures)
	assert.Equal(t, 2*time.Second, list[1].Duration())

	limited, err := runs.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestScanRunStore_SaveReplaces(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	runs := store.ScanRunStore()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	report := &domain.ScanReport{RunID: "run-1", StartedAt: now, EndedAt: now}
	require.NoError(t, runs.Save(ctx, report))

	report.Skipped = 7
	require.NoError(t, runs.Save(ctx, report))

	list, err := runs.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].Skipped)
}

func TestScanRunStore_RequiresRunID(t *testing.T) {
	store, _ := setupTestStore(t)
	err := store.ScanRunStore().Save(context.Background(), &domain.ScanReport{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, store.ScanRunStore().Save(context.Background(), nil), domain.ErrInvalidInput)
}
