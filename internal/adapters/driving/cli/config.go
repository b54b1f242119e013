package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "View and change configuration",
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE:        runConfigGet,
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show resolved settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration key",
	Long: `Set and persist one configuration key. Keys:

  repository.root                  repository directory
  writer.max_content_bytes         largest accepted content
  writer.connector_version         version recorded in ingest.connector
  writer.manifest                  append new records to manifest.jsonl
  indexer.workers                  parallel sidecar loaders
  indexer.verify_content           hash content instead of trusting sidecars
  indexer.stamp_sidecars           write index_status back to sidecars
  indexer.max_records_per_second   throttle catalog writes (0 = off)
  indexer.interval                 period for index --watch
  search.default_limit             results when --limit is not given`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	s, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(renderTable([]string{"Key", "Value"}, [][]string{
		{domain.KeyRepositoryRoot, s.RepositoryRoot},
		{domain.KeyMaxContentBytes, fmt.Sprint(s.MaxContentBytes)},
		{domain.KeyConnectorVersion, s.ConnectorVersion},
		{domain.KeyWriterManifest, fmt.Sprint(s.Manifest)},
		{domain.KeyIndexerWorkers, fmt.Sprint(s.IndexerWorkers)},
		{domain.KeyVerifyContent, fmt.Sprint(s.VerifyContent)},
		{domain.KeyStampSidecars, fmt.Sprint(s.StampSidecars)},
		{domain.KeyMaxRecordsPerSecond, fmt.Sprint(s.MaxRecordsPerSecond)},
		{domain.KeyIndexInterval, s.IndexInterval.String()},
		{domain.KeySearchDefaultLimit, fmt.Sprint(s.SearchDefaultLimit)},
	}))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("%s updated.\n", args[0])
	return nil
}
