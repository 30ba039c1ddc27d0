// Package mcp exposes the tool dispatcher over the Model Context Protocol:
// the JSON-RPC 2.0 message types and the method handlers behind the HTTP
// /mcp endpoint and the stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bambucloud/internal/services/tools"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Service implements the MCP methods over the tool dispatcher.
type Service struct {
	dispatcher *tools.Service
	serverName string
	version    string
	logger     arbor.ILogger
}

// NewService creates the MCP service.
func NewService(dispatcher *tools.Service, serverName, version string, logger arbor.ILogger) *Service {
	return &Service{
		dispatcher: dispatcher,
		serverName: serverName,
		version:    version,
		logger:     logger,
	}
}

// Initialize answers the MCP handshake: protocol version, capabilities,
// and server identity.
func (s *Service) Initialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		ServerInfo: ServerInfo{
			Name:    s.serverName,
			Version: s.version,
		},
	}
}

// ListTools returns the registered tools with their argument schemas.
func (s *Service) ListTools() *ToolList {
	defs := tools.Definitions()
	list := &ToolList{Tools: make([]Tool, 0, len(defs))}

	for i := range defs {
		list.Tools = append(list.Tools, Tool{
			Name:        defs[i].Name,
			Description: defs[i].Description,
			InputSchema: defs[i].InputSchema(),
		})
	}
	return list
}

// CallTool executes a tool and renders its outcome as MCP content.
// Dispatcher failures become isError results with the structured failure
// serialized as JSON, so callers keep the kind tag.
func (s *Service) CallTool(ctx context.Context, name string, args map[string]interface{}) *ToolResult {
	result := s.dispatcher.Call(ctx, name, args)

	if !result.OK {
		return &ToolResult{
			Content: []ContentBlock{{Type: "text", Text: marshalBlock(result.Failure)}},
			IsError: true,
		}
	}

	return &ToolResult{
		Content: []ContentBlock{{Type: "text", Text: marshalBlock(result.Payload)}},
	}
}

func marshalBlock(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
