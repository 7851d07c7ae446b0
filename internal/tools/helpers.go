package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
)

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// toolFailure reports err with a hint for the errors a caller can fix.
func toolFailure(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, models.ErrZoneNotFound):
		return toolError("Failed to %s: %v. Use list_zones to see available zones or add_zone to create one.", action, err)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrValidation):
		return toolError("Failed to %s: %v", action, err)
	default:
		return toolError("Failed to %s: internal error: %v", action, err)
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
