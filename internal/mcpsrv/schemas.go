package mcpsrv

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func followSymbolTool() mcp.Tool {
	return mcp.Tool{
		Name:        "follow_symbol",
		Description: "Follow the symbol under a file:line:col cursor to its definition/declaration",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the source file",
				},
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "1-based line number",
				},
				"col": map[string]interface{}{
					"type":        "integer",
					"description": "1-based column number",
				},
			},
			Required: []string{"path", "line", "col"},
		},
	}
}

func findReferencesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_references",
		Description: "Find every recorded reference to a named symbol",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a source file in the target project",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Symbol name to search for",
				},
			},
			Required: []string{"path", "name"},
		},
	}
}

func listSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_symbols",
		Description: "List symbols in a project matching a name prefix",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a source file in the target project",
				},
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Symbol name prefix",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results",
					"default":     100,
				},
			},
			Required: []string{"path", "prefix"},
		},
	}
}

func renamePreviewTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rename_preview",
		Description: "Preview renaming a symbol across its project as a unified diff per file, without writing anything",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a source file in the target project",
				},
				"old_name": map[string]interface{}{
					"type":        "string",
					"description": "Current symbol name",
				},
				"new_name": map[string]interface{}{
					"type":        "string",
					"description": "Replacement symbol name",
				},
			},
			Required: []string{"path", "old_name", "new_name"},
		},
	}
}

func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the daemon's current pending/in-flight job counts and known peer count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
