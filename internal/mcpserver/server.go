// Package mcpserver exposes the task service over the Model Context
// Protocol: tools for the task verbs, JSON resources for reads and prompt
// templates for planning conversations.
package mcpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"taskd/internal/service"
	"taskd/pkg/logger"
)

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string
	// Now is the clock used by date-sensitive prompts. Defaults to time.Now.
	Now func() time.Time
}

// New builds an MCP server with every tool, resource and prompt registered.
func New(svc *service.Service, opts Options) *mcp.Server {
	if opts.Name == "" {
		opts.Name = "taskd"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	registerTools(s, svc)
	registerResources(s, svc)
	registerPrompts(s, &promptBuilder{svc: svc, now: opts.Now})
	return s
}

// HTTPHandler serves s over streamable HTTP.
func HTTPHandler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

// RunStdio serves one session over stdin/stdout until the client
// disconnects or ctx is cancelled.
func RunStdio(ctx context.Context, s *mcp.Server) error {
	logger.Info(ctx, "MCP stdio session started")
	err := s.Run(ctx, &mcp.StdioTransport{})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
