package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

// defaultLimit caps results when the caller gives no limit.
const defaultLimit = 10

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"full-text query; empty lists the most recent documents"`
	Entity   string `json:"entity,omitempty" jsonschema:"restrict to one entity"`
	Workflow string `json:"workflow,omitempty" jsonschema:"restrict to one workflow"`
	Source   string `json:"source,omitempty" jsonschema:"restrict to one source such as mail or slack"`
	Category string `json:"category,omitempty" jsonschema:"restrict to one classifier category"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	RowID      int64   `json:"row_id"`
	Entity     string  `json:"entity"`
	Workflow   string  `json:"workflow,omitempty"`
	Date       string  `json:"date"`
	Path       string  `json:"path"`
	URI        string  `json:"uri"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

// ShowInput is the input schema for the show tool.
type ShowInput struct {
	Key string `json:"key" jsonschema:"document id, content path relative to the entity, or row id"`
}

// ShowOutput is the output schema for the show tool.
type ShowOutput struct {
	Kind         string         `json:"kind"`
	RowID        int64          `json:"row_id"`
	DocumentID   string         `json:"document_id"`
	Entity       string         `json:"entity"`
	Hash         string         `json:"hash"`
	ContentPath  string         `json:"content_path"`
	MetadataPath string         `json:"metadata_path"`
	Linked       []int64        `json:"linked,omitempty"`
	Record       map[string]any `json:"record,omitempty"`
}

// DedupInput is the input schema for the dedup_check tool.
type DedupInput struct {
	Hash string `json:"hash" jsonschema:"content digest in the form sha256:<hex>"`
}

// DedupOutput is the output schema for the dedup_check tool.
type DedupOutput struct {
	Seen      bool   `json:"seen"`
	Hash      string `json:"hash"`
	SourceID  string `json:"source_id,omitempty"`
	FirstSeen string `json:"first_seen,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "search",
		Description: "Search the archive catalog with ranked full-text matching",
	}, s.handleSearch)

	if s.ports.Document != nil {
		mcp.AddTool(s.srv, &mcp.Tool{
			Name:        "show",
			Description: "Show a catalogued document or stream with its metadata sidecar",
		}, s.handleShow)
	}

	if s.ports.Dedup != nil {
		mcp.AddTool(s.srv, &mcp.Tool{
			Name:        "dedup_check",
			Description: "Check whether content with a digest has been archived before",
		}, s.handleDedupCheck)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := domain.SearchOptions{
		Limit:    limit,
		Entity:   input.Entity,
		Workflow: input.Workflow,
		Source:   input.Source,
		Category: input.Category,
	}
	results, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		doc := &results[i].Document
		output.Results[i] = SearchResultOutput{
			DocumentID: doc.DocumentID,
			RowID:      doc.ID,
			Entity:     doc.Entity,
			Workflow:   doc.Workflow,
			Date:       doc.Date,
			Path:       doc.RelPath,
			URI:        entryURI(doc.ID),
			Score:      results[i].Score,
			Snippet:    results[i].Snippet,
		}
	}

	return nil, output, nil
}

// handleShow handles the show tool invocation.
func (s *Server) handleShow(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ShowInput,
) (*mcp.CallToolResult, ShowOutput, error) {
	details, err := s.ports.Document.Show(ctx, input.Key)
	if err != nil {
		return nil, ShowOutput{}, err
	}
	return nil, showOutput(details), nil
}

// handleDedupCheck handles the dedup_check tool invocation. An unseen
// digest is a normal answer, not an error.
func (s *Server) handleDedupCheck(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DedupInput,
) (*mcp.CallToolResult, DedupOutput, error) {
	entry, err := s.ports.Dedup.Check(ctx, input.Hash)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, DedupOutput{Hash: input.Hash}, nil
	case err != nil:
		return nil, DedupOutput{}, err
	}
	return nil, DedupOutput{
		Seen:      true,
		Hash:      entry.Hash,
		SourceID:  entry.SourceID,
		FirstSeen: entry.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"),
	}, nil
}

func showOutput(details *driving.DocumentDetails) ShowOutput {
	out := ShowOutput{
		Kind:         string(details.Kind),
		ContentPath:  details.ContentPath,
		MetadataPath: details.MetadataPath,
		Linked:       details.Linked,
		Record:       recordFields(details.Record),
	}
	switch {
	case details.Document != nil:
		out.RowID = details.Document.ID
		out.DocumentID = details.Document.DocumentID
		out.Entity = details.Document.Entity
		out.Hash = details.Document.Hash
	case details.Stream != nil:
		out.RowID = details.Stream.ID
		out.DocumentID = details.Stream.DocumentID
		out.Entity = details.Stream.Entity
		out.Hash = details.Stream.Hash
	}
	return out
}

// recordFields flattens a sidecar into plain JSON values so the tool's
// output schema stays a generic object.
func recordFields(rec *domain.Record) map[string]any {
	if rec == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}
