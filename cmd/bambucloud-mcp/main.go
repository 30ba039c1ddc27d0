package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/session"
	"github.com/ternarybob/bambucloud/internal/services/tools"
)

func main() {
	// Load configuration
	configPath := os.Getenv("BAMBUCLOUD_CONFIG")
	if configPath == "" {
		configPath = "bambucloud.toml"
		// The default path is optional: env vars alone can carry the
		// account settings when launched by an MCP client
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize vendor cloud client
	client := bambu.NewClient(
		bambu.WithBaseURL(config.Cloud.BaseURL),
		bambu.WithHTTPClient(&http.Client{Timeout: config.Cloud.RequestTimeout}),
		bambu.WithRateLimit(config.Cloud.RateLimit),
		bambu.WithUserAgent(config.Cloud.UserAgent),
		bambu.WithLogger(logger),
	)

	// Initialize session manager, seeded from configuration when a token is present
	sessionManager := session.NewManager(
		client,
		config.Account.Email,
		config.Account.Password,
		logger,
		session.WithSeedToken(config.Account.Token),
	)

	// Initialize tool dispatcher
	dispatcher := tools.NewService(client, sessionManager, config, logger)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		config.MCP.ServerName,
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register printer status tools
	mcpServer.AddTool(createGetPrinterStatusTool(), handleTool(dispatcher, logger, "get_printer_status"))
	mcpServer.AddTool(createGetAMSStatusTool(), handleTool(dispatcher, logger, "get_ams_status"))

	// Register cloud file tools
	mcpServer.AddTool(createListCloudFilesTool(), handleTool(dispatcher, logger, "list_cloud_files"))
	mcpServer.AddTool(createUploadFileTool(), handleTool(dispatcher, logger, "upload_file"))

	// Register print control tools
	mcpServer.AddTool(createStartPrintTool(), handleTool(dispatcher, logger, "start_print"))
	mcpServer.AddTool(createPausePrintTool(), handleTool(dispatcher, logger, "pause_print"))
	mcpServer.AddTool(createResumePrintTool(), handleTool(dispatcher, logger, "resume_print"))
	mcpServer.AddTool(createCancelPrintTool(), handleTool(dispatcher, logger, "cancel_print"))

	// Register preset tools
	mcpServer.AddTool(createListPresetsTool(), handleTool(dispatcher, logger, "list_presets"))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
