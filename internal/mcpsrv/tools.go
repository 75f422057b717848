package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rosrad/rtagsd/pkg/protocol"
)

// MCP error codes, matching the JSON-RPC reserved range the teacher's
// ErrorCodeInvalidParams/ErrorCodeInternalError constants use.
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
)

// MCPError mirrors the teacher's MCPError: code, message, and optional
// structured data describing what went wrong.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func (s *Server) handleFollowSymbol(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	if args == nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", nil)
	}
	line := getIntDefault(args, "line", 0)
	col := getIntDefault(args, "col", 0)

	resp, err := s.sendRequest(protocol.TypeClientQuery, protocol.ClientQueryMessage{
		Kind: "follow", Path: path, Line: line, Col: col,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "follow_symbol failed", map[string]interface{}{"error": err.Error()})
	}
	return mcp.NewToolResultText(formatHits(resp.Hits)), nil
}

func (s *Server) handleFindReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	if args == nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, _ := args["path"].(string)
	name, ok := args["name"].(string)
	if path == "" || !ok || name == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path and name parameters are required", nil)
	}

	resp, err := s.sendRequest(protocol.TypeClientQuery, protocol.ClientQueryMessage{
		Kind: "references", Path: path, Name: name,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "find_references failed", map[string]interface{}{"error": err.Error()})
	}
	return mcp.NewToolResultText(formatHits(resp.Hits)), nil
}

func (s *Server) handleListSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	if args == nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, _ := args["path"].(string)
	prefix, ok := args["prefix"].(string)
	if path == "" || !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "path and prefix parameters are required", nil)
	}
	limit := getIntDefault(args, "limit", 100)

	resp, err := s.sendRequest(protocol.TypeClientQuery, protocol.ClientQueryMessage{
		Kind: "list", Path: path, Prefix: prefix, Limit: limit,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "list_symbols failed", map[string]interface{}{"error": err.Error()})
	}
	return mcp.NewToolResultText(formatHits(resp.Hits)), nil
}

func (s *Server) handleRenamePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	if args == nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, _ := args["path"].(string)
	oldName, _ := args["old_name"].(string)
	newName, _ := args["new_name"].(string)
	if path == "" || oldName == "" || newName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path, old_name, and new_name parameters are required", nil)
	}

	resp, err := s.sendRequest(protocol.TypeClientQuery, protocol.ClientQueryMessage{
		Kind: "rename", Path: path, Name: oldName, NewName: newName,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "rename_preview failed", map[string]interface{}{"error": err.Error()})
	}
	if len(resp.Diffs) == 0 {
		return mcp.NewToolResultText("no references found; nothing to rename"), nil
	}
	var out string
	for _, d := range resp.Diffs {
		out += d.Diff
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.sendRequest(protocol.TypeClientStatus, protocol.ClientStatusMessage{})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "get_status failed", map[string]interface{}{"error": err.Error()})
	}
	buf, jsonErr := json.MarshalIndent(map[string]interface{}{
		"pending":   resp.Pending,
		"in_flight": resp.InFlight,
		"peers":     resp.Peers,
	}, "", "  ")
	if jsonErr != nil {
		return nil, newMCPError(ErrorCodeInternalError, "get_status failed", map[string]interface{}{"error": jsonErr.Error()})
	}
	return mcp.NewToolResultText(string(buf)), nil
}

func formatHits(hits []protocol.SymbolHit) string {
	rows := make([]map[string]interface{}, len(hits))
	for i, h := range hits {
		rows[i] = map[string]interface{}{
			"name": h.Name, "kind": h.Kind, "file": h.File, "line": h.Line, "col": h.Col,
		}
	}
	buf, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(buf)
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return defaultValue
}
