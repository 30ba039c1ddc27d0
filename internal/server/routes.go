// -----------------------------------------------------------------------
// Last Modified: Wednesday, 19th August 2026 2:37:18 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Service info and platform health probe
	mux.HandleFunc("/", s.app.APIHandler.RootHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)

	// Setup routes - one-time operator authentication
	mux.HandleFunc("/setup/login", s.app.SetupHandler.LoginHandler)     // POST - start login, may dispatch emailed code
	mux.HandleFunc("/setup/verify", s.app.SetupHandler.VerifyHandler)   // POST - exchange emailed code for token
	mux.HandleFunc("/setup/status", s.app.SetupHandler.StatusHandler)   // GET - session state
	mux.HandleFunc("/setup/session/", s.app.SetupHandler.ClearSessionHandler) // DELETE /{email} - drop pending challenge

	// API routes - direct tool invocation
	mux.HandleFunc("/api/tool", s.app.ToolHandler.InvokeHandler) // POST - invoke one tool
	mux.HandleFunc("/api/tools", s.app.ToolHandler.ListHandler)  // GET - tool listing with schemas

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// MCP (Model Context Protocol) endpoints
	mux.HandleFunc("/mcp", s.app.MCPHandler.HandleRPC)
	mux.HandleFunc("/mcp/info", s.app.MCPHandler.InfoHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
