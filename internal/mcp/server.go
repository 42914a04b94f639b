// ABOUTME: MCP server exposing the merged workout feed and the local workout store.
// ABOUTME: Wraps the MCP server with the feed coordinator and a storage Repository.
package mcp

import (
	"context"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Feed is the read side of the merge coordinator.
type Feed interface {
	Get(ctx context.Context, identity string) models.MergeResult
	ForceRefresh(ctx context.Context, identity string) models.MergeResult
	OlderPage(ctx context.Context, identity string, until time.Time) models.MergeResult
	Invalidate(identity string) error
}

// Server wraps the MCP server with feed and storage access.
type Server struct {
	mcpServer *mcp.Server
	feed      Feed
	repo      storage.Repository
	identity  string
}

// NewServer creates a new MCP server. identity is used when a tool call
// does not name one.
func NewServer(feed Feed, repo storage.Repository, identity, version string) (*Server, error) {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "workoutfeed",
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		feed:      feed,
		repo:      repo,
		identity:  identity,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) identityOr(input string) string {
	if input != "" {
		return input
	}
	return s.identity
}
