package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

type mockWriter struct {
	docReq    domain.DocumentRequest
	streamReq domain.StreamRequest
	result    *domain.WriteResult
	err       error
}

func (m *mockWriter) WriteDocument(_ context.Context, req domain.DocumentRequest) (*domain.WriteResult, error) {
	m.docReq = req
	return m.result, m.err
}

func (m *mockWriter) WriteStream(_ context.Context, req domain.StreamRequest) (*domain.WriteResult, error) {
	m.streamReq = req
	return m.result, m.err
}

type mockIndexer struct {
	opts   []domain.IndexOptions
	report *domain.ScanReport
	err    error
}

func (m *mockIndexer) Index(_ context.Context, opts domain.IndexOptions) (*domain.ScanReport, error) {
	m.opts = append(m.opts, opts)
	return m.report, m.err
}

func (m *mockIndexer) State() domain.ScanState { return domain.ScanIdle }

type mockSearchService struct {
	query   string
	opts    domain.SearchOptions
	results []domain.SearchResult
	err     error
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.query = query
	m.opts = opts
	return m.results, m.err
}

type mockDocumentService struct {
	key     string
	details *driving.DocumentDetails
	stats   *domain.CatalogStats
	runs    []domain.ScanReport
	err     error
}

func (m *mockDocumentService) Show(_ context.Context, key string) (*driving.DocumentDetails, error) {
	m.key = key
	return m.details, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.CatalogStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Runs(_ context.Context, _ int) ([]domain.ScanReport, error) {
	return m.runs, m.err
}

type mockDedupService struct {
	checked string
	entry   *domain.DedupEntry
	hash    string
	entries []domain.DedupEntry
	err     error
}

func (m *mockDedupService) Check(_ context.Context, hash string) (*domain.DedupEntry, error) {
	m.checked = hash
	return m.entry, m.err
}

func (m *mockDedupService) CheckFile(_ context.Context, path string) (*domain.DedupEntry, string, error) {
	m.checked = path
	return m.entry, m.hash, m.err
}

func (m *mockDedupService) List(_ context.Context, _ int) ([]domain.DedupEntry, error) {
	return m.entries, m.err
}

type mockSettingsService struct {
	settings *domain.Settings
	set      map[string]string
	err      error
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	return m.settings, m.err
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.set == nil {
		m.set = make(map[string]string)
	}
	m.set[key] = value
	return nil
}

type mockMetrics struct {
	paths []string
}

func (m *mockMetrics) WriteToTextfile(path string) error {
	m.paths = append(m.paths, path)
	return nil
}

// mockScheduler runs the indexer once per Start and reports it.
type mockScheduler struct {
	interval time.Duration
	opts     domain.IndexOptions
	onRun    func(*domain.ScanReport, error)
	indexer  driving.Indexer
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.onRun(m.indexer.Index(ctx, m.opts))
	return context.Canceled
}

func (m *mockScheduler) Stop() error { return nil }

// testServices is the set of mocks installed by setupTestServices.
type testServices struct {
	writer    *mockWriter
	indexer   *mockIndexer
	search    *mockSearchService
	documents *mockDocumentService
	dedup     *mockDedupService
	settings  *mockSettingsService
	metrics   *mockMetrics
	scheduler *mockScheduler
}

// setupTestServices installs mock services and returns them with a
// cleanup that restores the previous state.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()
	settings := domain.DefaultSettings()
	settings.RepositoryRoot = "/srv/archive"

	ts := &testServices{
		writer:    &mockWriter{},
		indexer:   &mockIndexer{report: &domain.ScanReport{}},
		search:    &mockSearchService{},
		documents: &mockDocumentService{},
		dedup:     &mockDedupService{},
		settings:  &mockSettingsService{settings: &settings},
		metrics:   &mockMetrics{},
	}
	SetServices(&Services{
		Writer:    ts.writer,
		Indexer:   ts.indexer,
		Search:    ts.search,
		Documents: ts.documents,
		Dedup:     ts.dedup,
		Settings:  ts.settings,
		Metrics:   ts.metrics,
		NewScheduler: func(interval time.Duration, opts domain.IndexOptions, onRun func(*domain.ScanReport, error)) driving.Scheduler {
			ts.scheduler = &mockScheduler{interval: interval, opts: opts, onRun: onRun, indexer: ts.indexer}
			return ts.scheduler
		},
	})

	t.Cleanup(func() {
		SetServices(&Services{})
		resetFlags(rootCmd)
	})
	return ts
}

// execute runs the command line with fresh flags and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so runs do not leak into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
