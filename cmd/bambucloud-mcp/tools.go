package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createGetPrinterStatusTool returns the get_printer_status tool definition
func createGetPrinterStatusTool() mcp.Tool {
	return mcp.NewTool("get_printer_status",
		mcp.WithDescription("Get the current status of the configured printer: online state, print state, and the latest print task with its progress."),
	)
}

// createGetAMSStatusTool returns the get_ams_status tool definition
func createGetAMSStatusTool() mcp.Tool {
	return mcp.NewTool("get_ams_status",
		mcp.WithDescription("Get the AMS (Automatic Material System) filament slots for the configured printer: loaded filament types, colors, and remaining estimates."),
	)
}

// createListCloudFilesTool returns the list_cloud_files tool definition
func createListCloudFilesTool() mcp.Tool {
	return mcp.NewTool("list_cloud_files",
		mcp.WithDescription("List print files stored in the account's cloud space."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of files to return (0 for the vendor default)"),
		),
	)
}

// createUploadFileTool returns the upload_file tool definition
func createUploadFileTool() mcp.Tool {
	return mcp.NewTool("upload_file",
		mcp.WithDescription("Upload a print file (.3mf, .gcode, or .gcode.3mf) to the account's cloud space. Content is base64-encoded."),
		mcp.WithString("file_name",
			mcp.Required(),
			mcp.Description("Target file name including extension"),
		),
		mcp.WithString("content_base64",
			mcp.Required(),
			mcp.Description("Base64-encoded file content"),
		),
	)
}

// createStartPrintTool returns the start_print tool definition
func createStartPrintTool() mcp.Tool {
	return mcp.NewTool("start_print",
		mcp.WithDescription("Start printing a cloud file on the configured printer."),
		mcp.WithString("file_id",
			mcp.Required(),
			mcp.Description("Cloud file identifier, as returned by list_cloud_files or upload_file"),
		),
		mcp.WithNumber("plate_number",
			mcp.Description("Build plate index within the file (default: 1)"),
		),
	)
}

// createPausePrintTool returns the pause_print tool definition
func createPausePrintTool() mcp.Tool {
	return mcp.NewTool("pause_print",
		mcp.WithDescription("Pause the print job currently running on the configured printer."),
	)
}

// createResumePrintTool returns the resume_print tool definition
func createResumePrintTool() mcp.Tool {
	return mcp.NewTool("resume_print",
		mcp.WithDescription("Resume a paused print job on the configured printer."),
	)
}

// createCancelPrintTool returns the cancel_print tool definition
func createCancelPrintTool() mcp.Tool {
	return mcp.NewTool("cancel_print",
		mcp.WithDescription("Cancel the print job currently running on the configured printer."),
	)
}

// createListPresetsTool returns the list_presets tool definition
func createListPresetsTool() mcp.Tool {
	return mcp.NewTool("list_presets",
		mcp.WithDescription("List the account's slicer presets: filament, print, and printer profiles."),
	)
}
