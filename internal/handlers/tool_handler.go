package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/tools"
)

// ToolHandler exposes the tool dispatcher over plain HTTP, alongside the
// MCP transport: a direct invoke endpoint and a tool listing.
type ToolHandler struct {
	dispatcher *tools.Service
	bodyLimit  int64
	logger     arbor.ILogger
}

// NewToolHandler creates a new tool handler.
func NewToolHandler(dispatcher *tools.Service, cfg *common.Config, logger arbor.ILogger) *ToolHandler {
	// Base64 inflates uploads by a third, so the body cap leaves headroom
	// over the decoded-content limit.
	bodyLimit := cfg.Cloud.UploadMaxBytes*2 + setupBodyLimit

	return &ToolHandler{
		dispatcher: dispatcher,
		bodyLimit:  bodyLimit,
		logger:     logger,
	}
}

type invokeRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// InvokeHandler executes one tool invocation. The outcome is always the
// uniform result shape; failures are carried in-band with their kind tag,
// not as transport errors.
func (h *ToolHandler) InvokeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req invokeRequest
	if err := DecodeJSON(r, &req, h.bodyLimit); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	result := h.dispatcher.Call(r.Context(), req.Name, req.Arguments)
	WriteJSON(w, http.StatusOK, result)
}

// ListHandler returns the registered tools with their argument schemas.
func (h *ToolHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	defs := tools.Definitions()
	list := make([]map[string]interface{}, 0, len(defs))
	for i := range defs {
		list = append(list, map[string]interface{}{
			"name":         defs[i].Name,
			"description":  defs[i].Description,
			"input_schema": defs[i].InputSchema(),
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(list),
		"tools": list,
	})
}
