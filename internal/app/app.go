// -----------------------------------------------------------------------
// Last Modified: Wednesday, 19th August 2026 2:37:18 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/handlers"
	"github.com/ternarybob/bambucloud/internal/services/mcp"
	"github.com/ternarybob/bambucloud/internal/services/session"
	"github.com/ternarybob/bambucloud/internal/services/tools"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Vendor cloud client and session state
	BambuClient    *bambu.Client
	SessionManager *session.Manager

	// Tool dispatch
	ToolService *tools.Service
	MCPService  *mcp.Service

	// HTTP handlers
	APIHandler   *handlers.APIHandler
	SetupHandler *handlers.SetupHandler
	ToolHandler  *handlers.ToolHandler
	MCPHandler   *handlers.MCPHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Vendor cloud client
	app.BambuClient = bambu.NewClient(
		bambu.WithBaseURL(cfg.Cloud.BaseURL),
		bambu.WithHTTPClient(&http.Client{Timeout: cfg.Cloud.RequestTimeout}),
		bambu.WithRateLimit(cfg.Cloud.RateLimit),
		bambu.WithUserAgent(cfg.Cloud.UserAgent),
		bambu.WithLogger(logger),
	)

	// Session manager, seeded from configuration when a token is present
	app.SessionManager = session.NewManager(
		app.BambuClient,
		cfg.Account.Email,
		cfg.Account.Password,
		logger,
		session.WithSeedToken(cfg.Account.Token),
	)

	// Tool dispatcher and MCP surface
	app.ToolService = tools.NewService(app.BambuClient, app.SessionManager, cfg, logger)
	app.MCPService = mcp.NewService(app.ToolService, cfg.MCP.ServerName, common.GetVersion(), logger)

	// HTTP handlers
	app.APIHandler = handlers.NewAPIHandler(cfg)
	app.SetupHandler = handlers.NewSetupHandler(app.SessionManager, cfg, logger)
	app.ToolHandler = handlers.NewToolHandler(app.ToolService, cfg, logger)
	app.MCPHandler = handlers.NewMCPHandler(app.MCPService, logger)

	if cfg.IsProduction() && cfg.Setup.Key == "" {
		logger.Warn().Msg("Setup endpoints are unprotected, set [setup] key for production deployments")
	}

	logger.Info().
		Str("device_id", cfg.Printer.Serial).
		Str("base_url", cfg.Cloud.BaseURL).
		Bool("token_seeded", cfg.HasSeededToken()).
		Bool("credentials", cfg.HasCredentials()).
		Msg("Application initialized")

	return app, nil
}
