package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/archivist/internal/logger"
)

// Version is reported to clients during initialisation.
const Version = "0.1.0"

const (
	// keepAlive pings idle sessions so dead clients are dropped.
	keepAlive = 30 * time.Second

	// shutdownGrace bounds how long in-flight HTTP requests may run on
	// after the serving context ends.
	shutdownGrace = 5 * time.Second
)

// Server exposes the archive's driving ports as MCP tools and resources.
// Tools and resources whose port is nil are not registered.
type Server struct {
	ports *Ports
	srv   *mcp.Server
}

// NewServer builds a server over ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{ports: ports}
	s.srv = mcp.NewServer(&mcp.Implementation{
		Name:    "archivist",
		Title:   "Archivist",
		Version: Version,
	}, &mcp.ServerOptions{
		Instructions: instructions(ports),
		Logger:       logger.L(),
		KeepAlive:    keepAlive,
	})
	s.registerTools()
	s.registerResources()
	return s, nil
}

// instructions describes the registered tools to connecting clients.
func instructions(p *Ports) string {
	lines := []string{
		"Archivist catalogues documents filed into a content-addressed archive.",
		"Use search for ranked full-text queries; an empty query lists the newest documents.",
	}
	if p.Document != nil {
		lines = append(lines,
			"Use show with a document ID or content path to read an entry with its metadata sidecar.",
			"Search hits link to "+uriScheme+"entries/{rowId}; "+uriScheme+"stats and "+uriScheme+
				"runs summarise the catalog and recent index runs.",
		)
	}
	if p.Dedup != nil {
		lines = append(lines, "Use dedup_check with a sha256 digest to learn whether content was archived before.")
	}
	return strings.Join(lines, "\n")
}

// Run serves a single client over stdio until ctx ends or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	logger.Debug("mcp: serving over stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler. Every session shares
// this server's tools and resources.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.srv
	}, &mcp.StreamableHTTPOptions{Logger: logger.L()})
}

// RunHTTP serves Handler on addr until ctx ends. Open streams share ctx,
// so they close with it; other requests get shutdownGrace to finish.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	served := make(chan error, 1)
	go func() { served <- httpServer.ListenAndServe() }()
	logger.Debug("mcp: serving http on %s", addr)

	select {
	case err := <-served:
		return fmt.Errorf("serving mcp on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down mcp server: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
