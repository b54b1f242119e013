package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

var (
	searchLimit    int
	searchJSON     bool
	searchRaw      bool
	searchEntity   string
	searchWorkflow string
	searchSource   string
	searchCategory string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search catalogued documents",
	Long: `Runs a ranked full-text (BM25) query over catalogued documents.
Every word must match; quotes and operators are taken literally unless --raw
is given. Without a query the most recent documents are listed.`,
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default search.default_limit)")
	f.BoolVar(&searchJSON, "json", false, "output results as JSON")
	f.BoolVar(&searchRaw, "raw", false, "pass the query to FTS5 unmodified")
	f.StringVarP(&searchEntity, "entity", "e", "", "restrict to one entity")
	f.StringVarP(&searchWorkflow, "workflow", "w", "", "restrict to one workflow")
	f.StringVarP(&searchSource, "source", "s", "", "restrict to one source")
	f.StringVar(&searchCategory, "category", "", "restrict to one classifier category")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Limit:    searchLimit,
		Entity:   searchEntity,
		Workflow: searchWorkflow,
		Source:   searchSource,
		Category: searchCategory,
		Raw:      searchRaw,
	}

	results, err := searchService.Search(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

// searchHit is the JSON shape of one result.
type searchHit struct {
	DocumentID string  `json:"document_id"`
	RowID      int64   `json:"row_id"`
	Entity     string  `json:"entity"`
	Date       string  `json:"date"`
	Workflow   string  `json:"workflow,omitempty"`
	Source     string  `json:"source"`
	Category   string  `json:"category,omitempty"`
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	hits := make([]searchHit, len(results))
	for i := range results {
		doc := &results[i].Document
		hits[i] = searchHit{
			DocumentID: doc.DocumentID,
			RowID:      doc.ID,
			Entity:     doc.Entity,
			Date:       doc.Date,
			Workflow:   doc.Workflow,
			Source:     doc.Source,
			Category:   doc.Category,
			Path:       doc.RelPath,
			Score:      results[i].Score,
			Snippet:    results[i].Snippet,
		}
	}
	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	rows := make([][]string, len(results))
	for i := range results {
		doc := &results[i].Document
		rows[i] = []string{
			strconv.Itoa(i + 1),
			doc.Date,
			doc.Entity,
			doc.Workflow,
			doc.Filename,
			fmt.Sprintf("%.2f", results[i].Score),
		}
	}
	cmd.Println(renderTable([]string{"#", "Date", "Entity", "Workflow", "File", "Score"}, rows))

	for i := range results {
		if s := results[i].Snippet; s != "" {
			cmd.Printf("  [%d] %s\n", i+1, s)
		}
	}
	return nil
}
