// Package cli provides the cobra command tree for archivist.
package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/logger"
)

// annotationOffline marks commands that run without opening the repository.
const annotationOffline = "offline"

// annotationConfigOnly marks commands that need settings but not the catalog.
const annotationConfigOnly = "config-only"

// annotationFreshCatalog marks commands that start from an empty catalog.
const annotationFreshCatalog = "fresh-catalog"

// Options are the global flags handed to the bootstrap function.
type Options struct {
	// Root overrides the repository root from configuration.
	Root string

	// ConfigDir overrides the configuration directory.
	ConfigDir string

	Verbose bool

	// ConfigOnly skips opening the repository and catalog.
	ConfigOnly bool

	// FreshCatalog drops the catalog files before opening them.
	FreshCatalog bool
}

// MetricsExporter writes collected metrics to a node_exporter textfile.
type MetricsExporter interface {
	WriteToTextfile(path string) error
}

// SchedulerFactory builds a scheduler running the indexer every interval.
type SchedulerFactory func(interval time.Duration, opts domain.IndexOptions, onRun func(*domain.ScanReport, error)) driving.Scheduler

// Services holds everything the commands call into. Close releases
// resources and may be nil.
type Services struct {
	Writer       driving.Writer
	Indexer      driving.Indexer
	Search       driving.SearchService
	Documents    driving.DocumentService
	Dedup        driving.DedupService
	Settings     driving.SettingsService
	Metrics      MetricsExporter
	NewScheduler SchedulerFactory
	Close        func() error
}

// BootstrapFunc wires services for the given options.
type BootstrapFunc func(opts Options) (*Services, error)

var (
	version = "dev"

	writerService    driving.Writer
	indexerService   driving.Indexer
	searchService    driving.SearchService
	documentService  driving.DocumentService
	dedupService     driving.DedupService
	settingsService  driving.SettingsService
	metricsExporter  MetricsExporter
	schedulerFactory SchedulerFactory
	closeServices    func() error

	bootstrap BootstrapFunc
	globals   Options
)

var rootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Content-addressed document repository",
	Long: `archivist stores documents and stream artifacts in a date-partitioned
repository with JSON metadata sidecars, and maintains a searchable SQLite
catalog that can always be rebuilt from the files on disk.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globals.Root, "root", "", "repository root (overrides repository.root and ARCHIVE_BASE_PATH)")
	flags.StringVar(&globals.ConfigDir, "config-dir", "", "configuration directory (default ~/.archivist)")
	flags.BoolVarP(&globals.Verbose, "verbose", "v", false, "enable debug logging")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap registers the function that wires services before a command runs.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// SetServices installs services directly.
func SetServices(s *Services) {
	writerService = s.Writer
	indexerService = s.Indexer
	searchService = s.Search
	documentService = s.Documents
	dedupService = s.Dedup
	settingsService = s.Settings
	metricsExporter = s.Metrics
	schedulerFactory = s.NewScheduler
	closeServices = s.Close
}

// Execute runs the root command and releases services afterwards.
func Execute() error {
	err := rootCmd.Execute()
	return errors.Join(err, release())
}

func prepare(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(globals.Verbose)

	if bootstrap == nil || hasAnnotation(cmd, annotationOffline) {
		return nil
	}

	opts := globals
	opts.ConfigOnly = hasAnnotation(cmd, annotationConfigOnly)
	opts.FreshCatalog = hasAnnotation(cmd, annotationFreshCatalog)

	services, err := bootstrap(opts)
	if err != nil {
		return err
	}
	SetServices(services)
	return nil
}

func release() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

func hasAnnotation(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[key] == "true" {
			return true
		}
	}
	return false
}
