package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/mcp"
)

// MCPHandler handles MCP protocol requests
type MCPHandler struct {
	service *mcp.Service
	logger  arbor.ILogger
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler(service *mcp.Service, logger arbor.ILogger) *MCPHandler {
	return &MCPHandler{
		service: service,
		logger:  logger,
	}
}

// HandleRPC handles JSON-RPC 2.0 requests
func (h *MCPHandler) HandleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, nil, mcp.InvalidRequest, "Method must be POST", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, nil, mcp.ParseError, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req mcp.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.sendError(w, nil, mcp.ParseError, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		h.sendError(w, req.ID, mcp.InvalidRequest, "Invalid JSON-RPC version", http.StatusBadRequest)
		return
	}

	h.logger.Debug().Str("method", req.Method).Msg("MCP RPC request")

	// Route to appropriate handler
	switch req.Method {
	case "initialize":
		h.sendSuccess(w, req.ID, h.service.Initialize())
	case "notifications/initialized":
		// Notification: acknowledge without a response body
		w.WriteHeader(http.StatusAccepted)
	case "ping":
		h.sendSuccess(w, req.ID, map[string]interface{}{})
	case "tools/list":
		h.sendSuccess(w, req.ID, h.service.ListTools())
	case "tools/call":
		h.handleCallTool(w, r, req)
	default:
		h.sendError(w, req.ID, mcp.MethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), http.StatusNotFound)
	}
}

// handleCallTool handles tools/call requests. Tool failures ride inside the
// result with isError set; JSON-RPC errors are reserved for protocol faults.
func (h *MCPHandler) handleCallTool(w http.ResponseWriter, r *http.Request, req mcp.JSONRPCRequest) {
	name, ok := req.Params["name"].(string)
	if !ok {
		h.sendError(w, req.ID, mcp.InvalidParams, "Missing or invalid 'name' parameter", http.StatusBadRequest)
		return
	}

	args, ok := req.Params["arguments"].(map[string]interface{})
	if !ok {
		args = make(map[string]interface{})
	}

	result := h.service.CallTool(r.Context(), name, args)
	h.sendSuccess(w, req.ID, result)
}

// sendSuccess sends a successful JSON-RPC response
func (h *MCPHandler) sendSuccess(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// sendError sends an error JSON-RPC response
func (h *MCPHandler) sendError(w http.ResponseWriter, id interface{}, code int, message string, httpStatus int) {
	resp := mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &mcp.RPCError{
			Code:    code,
			Message: message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}

// InfoHandler returns MCP server information
func (h *MCPHandler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	result := h.service.Initialize()

	info := map[string]interface{}{
		"name":        result.ServerInfo.Name,
		"version":     common.GetVersion(),
		"description": "Model Context Protocol server for Bambu Lab cloud printer control",
		"protocol":    result.ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": true,
		},
		"endpoints": map[string]string{
			"rpc":  "/mcp",
			"info": "/mcp/info",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"info":    info,
	})
}
