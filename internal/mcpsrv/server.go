// Package mcpsrv exposes the query router's operations (§4.9) as MCP
// tools, so an LLM coding agent can follow-symbol, find-references,
// list-symbols, and preview a rename against a running rtagsd the same
// way cmd/rc does — dialing its Unix domain socket — without speaking
// the framed client protocol itself. Grounded on dshills-gocontext-mcp's
// internal/mcp package: a thin Server wrapping *server.MCPServer, one
// tool per operation, every handler closing over the dependency it needs
// instead of reconstructing it per call.
package mcpsrv

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
)

// ServerName and ServerVersion identify this MCP server to clients,
// mirroring the teacher's ServerName/ServerVersion constants.
const (
	ServerName    = "rtagsd-mcp"
	ServerVersion = "1.0.0"
)

// Server wraps an MCP server whose tools proxy to a running rtagsd.
type Server struct {
	mcp        *server.MCPServer
	socketPath string
}

// New creates a Server whose tools target the daemon listening on
// socketPath and registers every tool.
func New(socketPath string) *Server {
	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		socketPath: socketPath,
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over stdio and blocks until the client disconnects,
// matching the teacher's Serve(ctx) signature even though ServeStdio
// itself is not context-aware.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(followSymbolTool(), s.handleFollowSymbol)
	s.mcp.AddTool(findReferencesTool(), s.handleFindReferences)
	s.mcp.AddTool(listSymbolsTool(), s.handleListSymbols)
	s.mcp.AddTool(renamePreviewTool(), s.handleRenamePreview)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
