// Package tools implements the tool dispatcher: a fixed registry of
// printer operations, each a thin validate -> authenticate -> call ->
// normalize wrapper over the vendor cloud API. Every invocation produces
// the uniform Result shape; no failure escapes as a bare error.
package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/session"
)

// PrinterClient is the slice of the vendor client the dispatcher needs for
// device and file operations.
type PrinterClient interface {
	GetDeviceStatus(ctx context.Context, token, serial string) (*bambu.DeviceStatus, error)
	GetAMSStatus(ctx context.Context, token, serial string) ([]bambu.AMSUnit, error)
	ListFiles(ctx context.Context, token string, limit int) ([]bambu.CloudFile, error)
	UploadFile(ctx context.Context, token, name string, content []byte) (*bambu.UploadResult, error)
	StartPrint(ctx context.Context, token, serial, fileID string, plateNumber int) (*bambu.PrintJob, error)
	PausePrint(ctx context.Context, token, serial string) (*bambu.PrintJob, error)
	ResumePrint(ctx context.Context, token, serial string) (*bambu.PrintJob, error)
	StopPrint(ctx context.Context, token, serial string) (*bambu.PrintJob, error)
	ListPresets(ctx context.Context, token string) (*bambu.PresetList, error)
}

// Service dispatches tool invocations against the configured printer.
type Service struct {
	client         PrinterClient
	session        *session.Manager
	serial         string
	callTimeout    time.Duration
	uploadMaxBytes int64
	logger         arbor.ILogger
}

// NewService creates the tool dispatcher for the configured device.
func NewService(client PrinterClient, sessionMgr *session.Manager, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		client:         client,
		session:        sessionMgr,
		serial:         cfg.Printer.Serial,
		callTimeout:    cfg.Tools.CallTimeout,
		uploadMaxBytes: cfg.Cloud.UploadMaxBytes,
		logger:         logger,
	}
}

// Call executes one tool invocation: unknown names and argument violations
// are rejected before any network activity, authentication failures surface
// without a vendor call, and a vendor-side authorization failure triggers
// exactly one refresh-and-retry.
func (s *Service) Call(ctx context.Context, name string, args map[string]interface{}) *Result {
	startTime := time.Now()
	invocationID := common.NewInvocationID()

	// Caller disconnect does not abort vendor work in flight; the result
	// for a dead caller is simply discarded. Timeouts still apply below.
	ctx = context.WithoutCancel(ctx)

	s.logger.Info().
		Str("tool", name).
		Str("invocation_id", invocationID).
		Msg("Executing tool")

	def, ok := lookup(name)
	if !ok {
		return s.finish(invocationID, startTime,
			failResult(name, FailUnknownTool, "", fmt.Sprintf("unknown tool: %s", name)))
	}

	parsed, issues := def.parseArgs(args)
	if len(issues) == 0 {
		issues = s.checkArgs(name, parsed)
	}
	if len(issues) > 0 {
		return s.finish(invocationID, startTime,
			failResult(name, FailInvalidArguments, "", "invalid arguments: "+strings.Join(issues, "; ")))
	}

	token, err := s.session.Acquire(ctx)
	if err != nil {
		return s.finish(invocationID, startTime, s.authFailure(name, err))
	}

	payload, err := s.invoke(ctx, token, name, parsed)
	if err != nil && bambu.IsAuthError(err) {
		// The cached token lost a race with vendor-side expiry. One
		// refresh, one retry; a second rejection is surfaced as-is.
		s.logger.Warn().
			Str("tool", name).
			Str("invocation_id", invocationID).
			Msg("Vendor rejected token, refreshing session")

		token, err = s.session.Refresh(ctx)
		if err != nil {
			return s.finish(invocationID, startTime, s.authFailure(name, err))
		}
		payload, err = s.invoke(ctx, token, name, parsed)
	}
	if err != nil {
		return s.finish(invocationID, startTime, s.vendorFailure(name, err))
	}

	return s.finish(invocationID, startTime, successResult(name, payload))
}

func (s *Service) finish(invocationID string, startTime time.Time, result *Result) *Result {
	event := s.logger.Info()
	if !result.OK {
		event = s.logger.Warn().
			Str("kind", string(result.Failure.Kind)).
			Str("message", result.Failure.Message)
	}
	event.
		Str("tool", result.Tool).
		Str("invocation_id", invocationID).
		Dur("duration", time.Since(startTime)).
		Msg("Tool execution complete")
	return result
}

// checkArgs applies tool-specific argument rules that go beyond declared
// shape. Runs before any network activity; may normalize parsed values.
func (s *Service) checkArgs(name string, parsed map[string]interface{}) []string {
	var issues []string

	switch name {
	case "upload_file":
		fileName := parsed["file_name"].(string)
		lower := strings.ToLower(fileName)
		if !strings.HasSuffix(lower, ".3mf") && !strings.HasSuffix(lower, ".gcode") {
			issues = append(issues, "file_name must end in .3mf, .gcode, or .gcode.3mf")
		}

		content, err := base64.StdEncoding.DecodeString(stripSpace(parsed["content_base64"].(string)))
		if err != nil {
			issues = append(issues, "content_base64 is not valid base64")
			break
		}
		if s.uploadMaxBytes > 0 && int64(len(content)) > s.uploadMaxBytes {
			issues = append(issues, fmt.Sprintf("content_base64 decodes to %d bytes, exceeding the %d byte limit", len(content), s.uploadMaxBytes))
			break
		}
		parsed["content"] = content

	case "start_print":
		if parsed["plate_number"].(int) < 1 {
			issues = append(issues, "plate_number must be 1 or greater")
		}

	case "list_cloud_files":
		if parsed["limit"].(int) < 0 {
			issues = append(issues, "limit must not be negative")
		}
	}

	return issues
}

// invoke issues the vendor call for a validated invocation. Each call is
// bounded by the configured per-call timeout.
func (s *Service) invoke(ctx context.Context, token, name string, args map[string]interface{}) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	switch name {
	case "get_printer_status":
		return s.printerStatus(ctx, token)
	case "get_ams_status":
		return s.amsStatus(ctx, token)
	case "list_cloud_files":
		return s.listFiles(ctx, token, args["limit"].(int))
	case "upload_file":
		return s.uploadFile(ctx, token, args["file_name"].(string), args["content"].([]byte))
	case "start_print":
		return s.startPrint(ctx, token, args["file_id"].(string), args["plate_number"].(int))
	case "pause_print":
		return s.printControl(ctx, token, s.client.PausePrint)
	case "resume_print":
		return s.printControl(ctx, token, s.client.ResumePrint)
	case "cancel_print":
		return s.printControl(ctx, token, s.client.StopPrint)
	case "list_presets":
		return s.listPresets(ctx, token)
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

func (s *Service) printerStatus(ctx context.Context, token string) (map[string]interface{}, error) {
	status, err := s.client.GetDeviceStatus(ctx, token, s.serial)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"device_id":       status.Device.DevID,
		"name":            status.Device.Name,
		"online":          status.Device.Online,
		"print_status":    status.Device.PrintStatus,
		"model":           status.Device.DevProductName,
		"nozzle_diameter": status.Device.NozzleDiameter,
	}
	if status.Task != nil {
		task := map[string]interface{}{
			"id":              status.Task.ID,
			"title":           status.Task.Title,
			"status":          status.Task.Status,
			"progress":        status.Task.Progress,
			"elapsed_seconds": status.Task.CostTime,
		}
		if !status.Task.StartTime.IsZero() {
			task["start_time"] = status.Task.StartTime.Format(time.RFC3339)
		} else if status.Task.StartTimeStr != "" {
			task["start_time"] = status.Task.StartTimeStr
		}
		payload["current_task"] = task
	}
	return payload, nil
}

func (s *Service) amsStatus(ctx context.Context, token string) (map[string]interface{}, error) {
	units, err := s.client.GetAMSStatus(ctx, token, s.serial)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"device_id": s.serial,
		"units":     units,
	}, nil
}

func (s *Service) listFiles(ctx context.Context, token string, limit int) (map[string]interface{}, error) {
	files, err := s.client.ListFiles(ctx, token, limit)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"count": len(files),
		"files": files,
	}, nil
}

func (s *Service) uploadFile(ctx context.Context, token, fileName string, content []byte) (map[string]interface{}, error) {
	result, err := s.client.UploadFile(ctx, token, fileName, content)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"file_id": result.FileID,
		"name":    result.Name,
		"size":    result.Size,
	}, nil
}

func (s *Service) startPrint(ctx context.Context, token, fileID string, plateNumber int) (map[string]interface{}, error) {
	job, err := s.client.StartPrint(ctx, token, s.serial, fileID, plateNumber)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"task_id":      job.TaskID,
		"status":       job.Status,
		"file_id":      fileID,
		"plate_number": plateNumber,
	}, nil
}

func (s *Service) printControl(ctx context.Context, token string, action func(context.Context, string, string) (*bambu.PrintJob, error)) (map[string]interface{}, error) {
	job, err := action(ctx, token, s.serial)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"device_id": s.serial,
		"status":    job.Status,
	}, nil
}

func (s *Service) listPresets(ctx context.Context, token string) (map[string]interface{}, error) {
	presets, err := s.client.ListPresets(ctx, token)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"filament": presets.Filament,
		"print":    presets.Print,
		"printer":  presets.Printer,
	}, nil
}

func (s *Service) authFailure(tool string, err error) *Result {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return failResult(tool, FailInvalidCredentials, "", err.Error())
	case errors.Is(err, session.ErrAuthRequired):
		return failResult(tool, FailAuthRequired, "", err.Error())
	}
	return s.vendorFailure(tool, err)
}

// vendorFailure maps a vendor call error onto the closed failure set. The
// classification was decided once at the HTTP boundary; the vendor message
// is carried verbatim.
func (s *Service) vendorFailure(tool string, err error) *Result {
	switch {
	case bambu.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return failResult(tool, FailVendorTimeout, "", err.Error())
	case errors.Is(err, bambu.ErrDeviceNotBound):
		return failResult(tool, FailVendorError, string(bambu.KindNotFound), err.Error())
	}

	if kind, ok := bambu.KindOf(err); ok {
		return failResult(tool, FailVendorError, string(kind), bambu.MessageOf(err))
	}
	return failResult(tool, FailVendorError, string(bambu.KindUnavailable), err.Error())
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
