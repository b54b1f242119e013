package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for archive resources.
	uriScheme = "archive://"

	// recentRuns is how many runs the runs resource lists.
	recentRuns = 10
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Document == nil {
		return
	}

	s.srv.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Catalog row counts by table, entity and workflow",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	s.srv.AddResource(&mcp.Resource{
		URI:         uriScheme + "runs",
		Name:        "runs",
		Description: "Most recent indexer runs",
		MIMEType:    "application/json",
	}, s.handleRunsResource)

	// Document IDs contain '/', so entries are addressed by row ID.
	s.srv.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "entries/{rowId}",
		Name:        "entry",
		Description: "A catalogued document or stream with its metadata sidecar",
		MIMEType:    "application/json",
	}, s.handleEntryResource)
}

// handleStatsResource returns catalog statistics.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Document.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	return jsonResource(req.Params.URI, stats)
}

// handleRunsResource returns recent indexer runs.
func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	runs, err := s.ports.Document.Runs(ctx, recentRuns)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return jsonResource(req.Params.URI, runs)
}

// handleEntryResource returns one catalog entry.
func (s *Server) handleEntryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	rowID := extractRowID(req.Params.URI)
	if rowID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	details, err := s.ports.Document.Show(ctx, rowID)
	if err != nil {
		return nil, fmt.Errorf("showing entry: %w", err)
	}
	return jsonResource(req.Params.URI, showOutput(details))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func entryURI(rowID int64) string {
	return uriScheme + "entries/" + strconv.FormatInt(rowID, 10)
}

// extractRowID extracts the row ID from a URI like archive://entries/{rowId}.
func extractRowID(uri string) string {
	const prefix = uriScheme + "entries/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return ""
	}
	return id
}
