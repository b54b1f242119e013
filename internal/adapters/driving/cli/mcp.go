package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the search, show and dedup_check tools and the
archive://stats, archive://runs and archive://entries/{rowId} resources.
By default it communicates over stdio; use --port to serve HTTP instead.

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "archivist": {
        "command": "/path/to/archivist",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ports := &mcp.Ports{
		Search:   searchService,
		Document: documentService,
		Dedup:    dedupService,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		addr := fmt.Sprintf(":%d", mcpPort)
		cmd.PrintErrf("MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
