package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/archivist/internal/adapters/driving/cli"
	"github.com/custodia-labs/archivist/internal/core/domain"
)

func TestBootstrap_ConfigOnly(t *testing.T) {
	svc, err := bootstrap(cli.Options{ConfigDir: t.TempDir(), ConfigOnly: true})
	require.NoError(t, err)

	assert.NotNil(t, svc.Settings)
	assert.Nil(t, svc.Writer)
	assert.Nil(t, svc.Indexer)
	assert.Nil(t, svc.Close)
}

func TestBootstrap_WiresServices(t *testing.T) {
	root := t.TempDir()
	svc, err := bootstrap(cli.Options{ConfigDir: t.TempDir(), Root: root})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.NotNil(t, svc.Writer)
	assert.NotNil(t, svc.Search)
	assert.NotNil(t, svc.Documents)
	assert.NotNil(t, svc.Dedup)
	assert.NotNil(t, svc.Metrics)
	assert.FileExists(t, filepath.Join(root, "indexes", sqlite.MetadataFile))

	report, err := svc.Indexer.Index(context.Background(), domain.IndexOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Failed)

	scheduler := svc.NewScheduler(time.Minute, domain.IndexOptions{}, func(*domain.ScanReport, error) {})
	assert.NotNil(t, scheduler)
}

func TestBootstrap_FreshCatalogDropsFiles(t *testing.T) {
	root := t.TempDir()
	indexDir := filepath.Join(root, "indexes")
	require.NoError(t, os.MkdirAll(indexDir, 0o755))
	stale := filepath.Join(indexDir, sqlite.MetadataFile)
	require.NoError(t, os.WriteFile(stale, []byte("not a database"), 0o644))

	svc, err := bootstrap(cli.Options{ConfigDir: t.TempDir(), Root: root, FreshCatalog: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	stats, err := svc.Documents.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}

func TestBootstrap_FreshCatalogWhileIndexing(t *testing.T) {
	root := t.TempDir()
	lock := filesystem.NewRunLock(filepath.Join(root, "indexes", filesystem.LockFile))
	require.NoError(t, lock.TryLock())
	t.Cleanup(func() { _ = lock.Unlock() })

	_, err := bootstrap(cli.Options{ConfigDir: t.TempDir(), Root: root, FreshCatalog: true})
	assert.ErrorIs(t, err, domain.ErrIndexBusy)
}
