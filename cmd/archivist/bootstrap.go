package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/custodia-labs/archivist/internal/adapters/driven/config/file"
	"github.com/custodia-labs/archivist/internal/adapters/driven/metrics"
	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/archivist/internal/adapters/driving/cli"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/layout"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/core/services"
	"github.com/custodia-labs/archivist/internal/logger"
)

// bootstrap wires the adapters and services for one command invocation.
func bootstrap(opts cli.Options) (*cli.Services, error) {
	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	if opts.ConfigOnly {
		return &cli.Services{Settings: settingsService}, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if opts.Root != "" {
		root, err := services.ExpandHome(opts.Root)
		if err != nil {
			return nil, err
		}
		settings.RepositoryRoot = root
	}
	logger.Debug("repository root: %s", settings.RepositoryRoot)

	resolver, err := layout.NewResolver(settings.RepositoryRoot)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(resolver.IndexDir(), filesystem.LockFile)
	if opts.FreshCatalog {
		if err := dropCatalog(resolver.IndexDir(), lockPath); err != nil {
			return nil, err
		}
	}

	store, err := sqlite.NewStore(resolver.IndexDir())
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	content := filesystem.NewStore()
	registry := metrics.New()

	writer := services.NewWriter(resolver, content, *settings)
	writer.SetMetrics(registry)

	indexer, err := services.NewIndexer(resolver, content, store.Catalog(), store.ScanRunStore(),
		filesystem.NewRunLock(lockPath), *settings)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	indexer.SetMetrics(registry)

	documents, err := services.NewDocumentService(resolver, content, store.Catalog(), store.ScanRunStore())
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	newScheduler := func(interval time.Duration, opts domain.IndexOptions, onRun func(*domain.ScanReport, error)) driving.Scheduler {
		if interval <= 0 {
			interval = settings.IndexInterval
		}
		s := services.NewScheduler(indexer, interval, opts)
		s.OnRun(onRun)
		return s
	}

	return &cli.Services{
		Writer:       writer,
		Indexer:      indexer,
		Search:       services.NewSearchService(store.Catalog(), settings.SearchDefaultLimit),
		Documents:    documents,
		Dedup:        services.NewDedupService(store.Ledger(), content),
		Settings:     settingsService,
		Metrics:      registry,
		NewScheduler: newScheduler,
		Close:        store.Close,
	}, nil
}

// dropCatalog removes the catalog files while holding the run lock, so
// a concurrent indexer never sees them disappear.
func dropCatalog(indexDir, lockPath string) error {
	lock := filesystem.NewRunLock(lockPath)
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("releasing run lock: %v", err)
		}
	}()
	logger.Info("dropping catalog in %s", indexDir)
	return sqlite.Remove(indexDir)
}
