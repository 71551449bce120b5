// Package mcpserver exposes tablekv operations as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jacentio/tablekv/tools"
)

const (
	serverName    = "tablekv"
	serverVersion = "0.1.0"
)

// MCP answers tools/list and prompts/list itself, so the descriptor
// operations are not exposed as tools.
var skipped = map[string]bool{
	"tools":   true,
	"prompts": true,
}

// Server wraps an MCP server whose tools call into one or more Callers.
type Server struct {
	mcpServer *mcp.Server
	logger    *slog.Logger
	names     []string
}

// New registers every operation of callers as an MCP tool. Two callers
// declaring the same operation name is an error.
func New(logger *slog.Logger, callers ...tools.Caller) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		logger:    logger,
	}

	seen := make(map[string]bool)
	for _, caller := range callers {
		for _, spec := range caller.Specs() {
			if skipped[spec.Name] {
				continue
			}
			if seen[spec.Name] {
				return nil, fmt.Errorf("mcp tool %q registered twice", spec.Name)
			}
			seen[spec.Name] = true

			s.mcpServer.AddTool(&mcp.Tool{
				Name:        spec.Name,
				Description: spec.Description,
				InputSchema: spec.Schema(),
			}, s.handler(caller, spec))
			s.names = append(s.names, spec.Name)
		}
	}
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

// Run serves on transport until ctx is done or the peer disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("serving mcp", "tools", len(s.names))
	return s.mcpServer.Run(ctx, transport)
}

// handler returns the JSON result of the operation as text content.
// Operation errors are reported to the client as tool errors.
func (s *Server) handler(caller tools.Caller, spec tools.Spec) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := caller.Call(ctx, spec.Name, req.Params.Arguments)
		if err != nil {
			s.logger.Warn("tool call failed",
				"tool", spec.Name,
				"kind", spec.Kind,
				"error", err,
			)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(out)}},
		}, nil
	}
}
