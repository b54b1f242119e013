package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Query the dedup ledger",
	Long: `The dedup ledger records the first time each content digest was
catalogued. Entries are never updated or removed.`,
}

var dedupHash bool

var dedupCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check whether a file's content was seen before",
	Long: `Hash a file and look its digest up in the ledger. With --hash the
argument is a digest (sha256:<hex>) instead of a file.`,
	Args: cobra.ExactArgs(1),
	RunE: runDedupCheck,
}

var dedupListLimit int

var dedupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runDedupList,
}

func init() {
	dedupCheckCmd.Flags().BoolVar(&dedupHash, "hash", false, "treat the argument as a digest")
	dedupListCmd.Flags().IntVarP(&dedupListLimit, "limit", "n", 0, "maximum number of entries (0 for all)")
	dedupCmd.AddCommand(dedupCheckCmd)
	dedupCmd.AddCommand(dedupListCmd)
	rootCmd.AddCommand(dedupCmd)
}

func runDedupCheck(cmd *cobra.Command, args []string) error {
	if dedupService == nil {
		return errors.New("dedup service not configured")
	}

	var (
		entry *domain.DedupEntry
		hash  = args[0]
		err   error
	)
	if dedupHash {
		entry, err = dedupService.Check(cmd.Context(), hash)
	} else {
		entry, hash, err = dedupService.CheckFile(cmd.Context(), args[0])
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		cmd.Printf("new: %s\n", hash)
		return nil
	case err != nil:
		return fmt.Errorf("dedup check failed: %w", err)
	}

	cmd.Printf("seen: %s\n", entry.Hash)
	cmd.Printf("  First seen: %s\n", entry.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"))
	cmd.Printf("  Source:     %s\n", entry.SourceID)
	return nil
}

func runDedupList(cmd *cobra.Command, _ []string) error {
	if dedupService == nil {
		return errors.New("dedup service not configured")
	}

	entries, err := dedupService.List(cmd.Context(), dedupListLimit)
	if err != nil {
		return fmt.Errorf("failed to list ledger: %w", err)
	}
	if len(entries) == 0 {
		cmd.Println("Ledger is empty.")
		return nil
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"), e.Hash, e.SourceID}
	}
	cmd.Println(renderTable([]string{"First seen", "Hash", "Source"}, rows))
	return nil
}
