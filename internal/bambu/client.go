package bambu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the Bambu cloud API.
	DefaultBaseURL = "https://api.bambulab.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultUserAgent identifies this client to the vendor API.
	DefaultUserAgent = "bambucloud"
)

// Client is a Bambu cloud API client. Identity calls carry no token;
// device and file calls take the bearer token per call so the client
// itself holds no credential state.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a new Bambu cloud API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs a request against the API, classifying every failure once.
func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return &TimeoutError{Endpoint: path, Timeout: c.httpClient.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("url", c.baseURL+path).
			Msg("Bambu API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return &TimeoutError{Endpoint: path, Timeout: c.httpClient.Timeout}
		}
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, path)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, token string, result interface{}) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, token, nil, "", result)
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path, token string, payload interface{}, result interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, token, bytes.NewReader(data), "application/json", result)
}

// newAPIError builds the classified error for a non-2xx response.
// The vendor message is preserved verbatim for operator diagnosis.
func newAPIError(resp *http.Response, endpoint string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Kind:       classifyStatus(resp.StatusCode),
		Endpoint:   endpoint,
	}

	// The vendor wraps errors as {"code": ..., "error": ..., "message": ...}
	// but not consistently, so fall back to the raw body.
	var parsed struct {
		Code    json.Number `json:"code"`
		Error   string      `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code.String()
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		} else if parsed.Error != "" {
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Login performs a password-grant login.
// A successful response without a token means the vendor requires an
// emailed verification code (see RequestEmailCode / VerifyCode).
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	payload := map[string]string{
		"account":  email,
		"password": password,
	}

	var result LoginResult
	if err := c.postJSON(ctx, "/v1/user-service/user/login", "", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestEmailCode asks the vendor to email a one-time login code.
func (c *Client) RequestEmailCode(ctx context.Context, email string) error {
	payload := map[string]string{
		"email": email,
		"type":  "codeLogin",
	}
	return c.postJSON(ctx, "/v1/user-service/user/sendemail/code", "", payload, nil)
}

// VerifyCode exchanges an emailed one-time code for an access token.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (*LoginResult, error) {
	payload := map[string]string{
		"account": email,
		"code":    code,
	}

	var result LoginResult
	if err := c.postJSON(ctx, "/v1/user-service/user/login", "", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDevice returns the bound-device record for the given serial.
// Returns ErrDeviceNotBound when the serial is not on the account.
func (c *Client) GetDevice(ctx context.Context, token, serial string) (*BoundDevice, error) {
	var result bindResponse
	if err := c.get(ctx, "/v1/iot-service/api/user/bind", nil, token, &result); err != nil {
		return nil, err
	}

	for i := range result.Devices {
		if result.Devices[i].DevID == serial {
			return &result.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotBound, serial)
}

// GetLatestTask returns the most recent print task for a device, or nil
// when the device has no task history.
func (c *Client) GetLatestTask(ctx context.Context, token, serial string) (*PrintTask, error) {
	params := url.Values{}
	params.Set("deviceId", serial)
	params.Set("limit", "1")

	var result taskListResponse
	if err := c.get(ctx, "/v1/user-service/my/tasks", params, token, &result); err != nil {
		return nil, err
	}

	if len(result.Hits) == 0 {
		return nil, nil
	}

	task := result.Hits[0]
	if t, err := time.Parse(time.RFC3339, task.StartTimeStr); err == nil {
		task.StartTime = t
	} else if t, err := time.Parse("2006-01-02 15:04:05", task.StartTimeStr); err == nil {
		task.StartTime = t
	}
	return &task, nil
}

// GetDeviceStatus combines the bound-device record with its latest task.
func (c *Client) GetDeviceStatus(ctx context.Context, token, serial string) (*DeviceStatus, error) {
	device, err := c.GetDevice(ctx, token, serial)
	if err != nil {
		return nil, err
	}

	task, err := c.GetLatestTask(ctx, token, serial)
	if err != nil {
		return nil, err
	}

	return &DeviceStatus{Device: *device, Task: task}, nil
}

// GetAMSStatus returns the filament-slot state for a device.
func (c *Client) GetAMSStatus(ctx context.Context, token, serial string) ([]AMSUnit, error) {
	params := url.Values{}
	params.Set("device_id", serial)

	var result amsResponse
	if err := c.get(ctx, "/v1/iot-service/api/user/ams", params, token, &result); err != nil {
		return nil, err
	}
	return result.AMS, nil
}

// ListFiles returns the account's stored cloud files.
func (c *Client) ListFiles(ctx context.Context, token string, limit int) ([]CloudFile, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result fileListResponse
	if err := c.get(ctx, "/v1/iot-service/api/user/cloud/file", params, token, &result); err != nil {
		return nil, err
	}

	// Parse timestamps
	for i := range result.Files {
		if t, err := time.Parse(time.RFC3339, result.Files[i].CreateTimeStr); err == nil {
			result.Files[i].CreateTime = t
		} else if t, err := time.Parse("2006-01-02 15:04:05", result.Files[i].CreateTimeStr); err == nil {
			result.Files[i].CreateTime = t
		}
	}

	return result.Files, nil
}

// UploadFile stores a file in the account's cloud space.
func (c *Client) UploadFile(ctx context.Context, token, name string, content []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	var result UploadResult
	if err := c.do(ctx, http.MethodPost, "/v1/iot-service/api/user/cloud/file", token, &buf, writer.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartPrint begins a print job from a stored cloud file.
func (c *Client) StartPrint(ctx context.Context, token, serial, fileID string, plateNumber int) (*PrintJob, error) {
	payload := map[string]interface{}{
		"device_id":    serial,
		"file_id":      fileID,
		"plate_number": plateNumber,
	}

	var result PrintJob
	if err := c.postJSON(ctx, "/v1/iot-service/api/user/print/start", token, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PausePrint pauses the active job on a device.
func (c *Client) PausePrint(ctx context.Context, token, serial string) (*PrintJob, error) {
	return c.printControl(ctx, token, serial, "pause")
}

// ResumePrint resumes a paused job on a device.
func (c *Client) ResumePrint(ctx context.Context, token, serial string) (*PrintJob, error) {
	return c.printControl(ctx, token, serial, "resume")
}

// StopPrint aborts the active job on a device.
func (c *Client) StopPrint(ctx context.Context, token, serial string) (*PrintJob, error) {
	return c.printControl(ctx, token, serial, "stop")
}

func (c *Client) printControl(ctx context.Context, token, serial, action string) (*PrintJob, error) {
	payload := map[string]string{
		"device_id": serial,
	}

	var result PrintJob
	if err := c.postJSON(ctx, "/v1/iot-service/api/user/print/"+action, token, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPresets returns the account's slicer setting catalog.
// Note: availability depends on the account's API tier.
func (c *Client) ListPresets(ctx context.Context, token string) (*PresetList, error) {
	params := url.Values{}
	params.Set("version", "1.10.0")

	var result PresetList
	if err := c.get(ctx, "/v1/iot-service/api/slicer/setting", params, token, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
