package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show a catalogued document or stream",
	Long: `Show a catalog entry with its metadata sidecar and links. The key may be
a document ID, a content path relative to the entity root (optionally
prefixed with the entity), or a row ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(showCmd)
}

// entryView is the serialised shape of an entry.
type entryView struct {
	Kind         string         `json:"kind"`
	RowID        int64          `json:"row_id"`
	DocumentID   string         `json:"document_id"`
	Entity       string         `json:"entity"`
	Date         string         `json:"date"`
	Path         string         `json:"path"`
	Hash         string         `json:"hash"`
	Workflow     string         `json:"workflow,omitempty"`
	Source       string         `json:"source,omitempty"`
	Category     string         `json:"category,omitempty"`
	ContentPath  string         `json:"content_path"`
	MetadataPath string         `json:"metadata_path"`
	Linked       []int64        `json:"linked,omitempty"`
	Record       *domain.Record `json:"record,omitempty"`
}

func runShow(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	details, err := documentService.Show(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to show entry: %w", err)
	}
	view := newEntryView(details)

	switch showFormat {
	case "json":
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		cmd.Println(string(data))
	case "yaml":
		data, err := toYAML(view)
		if err != nil {
			return err
		}
		cmd.Print(string(data))
	case "text":
		printEntry(cmd, view)
	default:
		return fmt.Errorf("unknown format %q: expected text, json or yaml", showFormat)
	}
	return nil
}

func newEntryView(d *driving.DocumentDetails) entryView {
	v := entryView{
		Kind:         string(d.Kind),
		ContentPath:  d.ContentPath,
		MetadataPath: d.MetadataPath,
		Linked:       d.Linked,
		Record:       d.Record,
	}
	switch {
	case d.Document != nil:
		doc := d.Document
		v.RowID, v.DocumentID, v.Entity = doc.ID, doc.DocumentID, doc.Entity
		v.Date, v.Path, v.Hash = doc.Date, doc.RelPath, doc.Hash
		v.Workflow, v.Source, v.Category = doc.Workflow, doc.Source, doc.Category
	case d.Stream != nil:
		s := d.Stream
		v.RowID, v.DocumentID, v.Entity = s.ID, s.DocumentID, s.Entity
		v.Date, v.Path, v.Hash = s.Date, s.RelPath, s.Hash
		v.Source = s.Kind
	}
	return v
}

func printEntry(cmd *cobra.Command, v entryView) {
	cmd.Printf("%s %d: %s\n\n", v.Kind, v.RowID, v.DocumentID)
	cmd.Printf("  Entity:    %s\n", v.Entity)
	cmd.Printf("  Date:      %s\n", v.Date)
	if v.Workflow != "" {
		cmd.Printf("  Workflow:  %s\n", v.Workflow)
	}
	cmd.Printf("  Source:    %s\n", v.Source)
	if v.Category != "" {
		cmd.Printf("  Category:  %s\n", v.Category)
	}
	cmd.Printf("  Hash:      %s\n", v.Hash)
	cmd.Printf("  Content:   %s\n", v.ContentPath)
	cmd.Printf("  Metadata:  %s\n", v.MetadataPath)
	if len(v.Linked) > 0 {
		cmd.Printf("  Linked:    %v\n", v.Linked)
	}
	if v.Record == nil {
		cmd.Println("\n  Sidecar could not be read.")
		return
	}
	if v.Record.Origin != nil {
		cmd.Printf("  Origin:    %s\n", v.Record.Origin.Summary())
	}
	if len(v.Record.Tags) > 0 {
		cmd.Printf("  Tags:      %v\n", v.Record.Tags)
	}
}

// toYAML renders v through its JSON form so field names and order match
// the JSON output.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to convert entry: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to render yaml: %w", err)
	}
	return out, nil
}

// blockStyle clears the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
