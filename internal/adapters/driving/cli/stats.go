package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the catalog",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent index runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "maximum number of runs")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(runsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	stats, err := documentService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	cmd.Println(renderTable([]string{"Table", "Rows"}, [][]string{
		{"documents", strconv.Itoa(stats.Documents)},
		{"streams", strconv.Itoa(stats.Streams)},
		{"links", strconv.Itoa(stats.Links)},
		{"dedup", strconv.Itoa(stats.Dedup)},
		{"training", strconv.Itoa(stats.Training)},
		{"fts", strconv.Itoa(stats.FullText)},
	}))

	if len(stats.ByEntity) > 0 {
		cmd.Println(renderTable([]string{"Entity", "Documents"}, countRows(stats.ByEntity)))
	}
	if len(stats.ByWorkflow) > 0 {
		cmd.Println(renderTable([]string{"Workflow", "Documents"}, countRows(stats.ByWorkflow)))
	}
	return nil
}

func countRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, strconv.Itoa(counts[k])}
	}
	return rows
}

func runRuns(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	runs, err := documentService.Runs(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No index runs recorded.")
		return nil
	}

	rows := make([][]string, len(runs))
	for i := range runs {
		r := &runs[i]
		entity := r.Entity
		if entity == "" {
			entity = "*"
		}
		rows[i] = []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			entity,
			r.Duration().Round(time.Millisecond).String(),
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Inserted),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Deleted),
		}
	}
	cmd.Println(renderTable(
		[]string{"Started", "Entity", "Took", "Processed", "Inserted", "Updated", "Skipped", "Failed", "Deleted"},
		rows,
	))
	return nil
}
