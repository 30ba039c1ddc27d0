package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bambucloud/internal/services/tools"
)

// handleTool adapts a registered tool to the stdio transport. Argument
// validation lives in the dispatcher, so every tool shares one handler:
// pass the raw arguments through and render the structured result.
func handleTool(dispatcher *tools.Service, logger arbor.ILogger, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := dispatcher.Call(ctx, name, request.GetArguments())

		// Tool failures travel inside the result with IsError set, never
		// as Go errors: a transport error would tear down the session
		if !result.OK {
			logger.Warn().
				Str("tool", name).
				Str("kind", string(result.Failure.Kind)).
				Msg("Tool call failed")
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					mcp.NewTextContent(renderJSON(result.Failure)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(renderJSON(result.Payload)),
			},
		}, nil
	}
}

// renderJSON pretty-prints a value for text content blocks
func renderJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
