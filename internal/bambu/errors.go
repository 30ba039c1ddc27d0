package bambu

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a vendor API failure. The classification is decided
// once, from the HTTP response, and carried unchanged through the rest of
// the pipeline.
type ErrorKind string

const (
	KindAuthorization ErrorKind = "unauthorized" // Token rejected or missing
	KindNotFound      ErrorKind = "not_found"
	KindBusy          ErrorKind = "busy"
	KindUnsupported   ErrorKind = "unsupported" // Device, API tier, or payload not supported
	KindRateLimited   ErrorKind = "rate_limited"
	KindUnavailable   ErrorKind = "unavailable" // Vendor-side failure or device unreachable
)

// ErrDeviceNotBound is returned when the configured device serial is not
// among the devices bound to the account.
var ErrDeviceNotBound = errors.New("device not bound to this account")

// APIError represents an error response from the Bambu cloud API.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Code       string // Vendor error code when the body carried one
	Message    string // Vendor message, verbatim
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bambu API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// TimeoutError represents a vendor call that exceeded its deadline.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bambu API timeout (endpoint: %s, after: %v)", e.Endpoint, e.Timeout)
}

// classifyStatus maps an HTTP status to the closed set of error kinds.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict || status == http.StatusLocked:
		return KindBusy
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnsupportedMediaType ||
		status == http.StatusUnprocessableEntity || status == http.StatusNotImplemented:
		return KindUnsupported
	default:
		return KindUnavailable
	}
}

// IsAuthError reports whether err is a vendor authorization failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuthorization
}

// IsTimeout reports whether err is a vendor call timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// KindOf extracts the error kind from a vendor API error.
// The second return is false for errors that did not come from the vendor.
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return "", false
}

// MessageOf extracts the verbatim vendor message from a vendor API error,
// falling back to the plain error string.
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
