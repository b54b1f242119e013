package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/logger"
)

// ErrRecordsFailed is returned when an index run finished with failed records.
var ErrRecordsFailed = errors.New("some records failed to index")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Reconcile the catalog with the repository",
	Long: `Scans every metadata sidecar under entities/ and brings the catalog in
line with it: new sidecars are inserted, changed ones updated, and rows whose
sidecar disappeared are deleted. Failures are isolated per record and
reported in the summary; the command exits non-zero if any record failed.

With --every the scan repeats on that interval until interrupted; --watch
does the same on the configured indexer.interval.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop the catalog and rebuild it from the sidecars",
	Long: `Deletes metadata.db and fts.db and runs a full index. The catalog is a
pure projection of the sidecars, so the result matches an incremental index.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationFreshCatalog: "true"},
	RunE:        runIndex,
}

var (
	indexEntity      string
	indexEvery       time.Duration
	indexWatch       bool
	indexMetricsFile string
)

func init() {
	indexCmd.Flags().StringVarP(&indexEntity, "entity", "e", "", "limit the scan to one entity")
	indexCmd.Flags().DurationVar(&indexEvery, "every", 0, "repeat the scan on this interval (e.g. 15m)")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "repeat the scan on the configured indexer.interval")
	indexCmd.Flags().StringVar(&indexMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after each run")
	rebuildCmd.Flags().StringVar(&indexMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(rebuildCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexerService == nil {
		return errors.New("indexer service not configured")
	}

	rebuild := hasAnnotation(cmd, annotationFreshCatalog)
	opts := domain.IndexOptions{}
	if !rebuild {
		opts.Entity = indexEntity
	}

	if !rebuild && (indexEvery > 0 || indexWatch) {
		return runScheduled(cmd, opts)
	}

	report, err := indexerService.Index(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	printReport(cmd, report)
	exportMetrics()

	if report.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRecordsFailed, report.Failed, report.Processed)
	}
	return nil
}

func runScheduled(cmd *cobra.Command, opts domain.IndexOptions) error {
	if schedulerFactory == nil {
		return errors.New("scheduler not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := schedulerFactory(indexEvery, opts, func(report *domain.ScanReport, err error) {
		if err == nil && report != nil {
			printReport(cmd, report)
		}
		exportMetrics()
	})

	if indexEvery > 0 {
		cmd.Printf("Indexing every %s, press Ctrl+C to stop.\n", indexEvery)
	} else {
		cmd.Println("Indexing on the configured interval, press Ctrl+C to stop.")
	}
	err := scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printReport(cmd *cobra.Command, report *domain.ScanReport) {
	cmd.Println(report.Summary())
	for _, f := range report.Failures {
		cmd.PrintErrf("  failed: %s: %s\n", f.Path, f.Error)
	}
}

func exportMetrics() {
	if indexMetricsFile == "" || metricsExporter == nil {
		return
	}
	if err := metricsExporter.WriteToTextfile(indexMetricsFile); err != nil {
		logger.Warn("writing metrics to %s: %v", indexMetricsFile, err)
	}
}
