package tools

// FailureKind is the closed set of structured failure tags a tool call can
// produce. Callers branch on the kind; the message is for display only.
type FailureKind string

const (
	FailInvalidCredentials FailureKind = "invalid_credentials"
	FailAuthRequired       FailureKind = "auth_required"
	FailNoPendingChallenge FailureKind = "no_pending_challenge"
	FailVerificationFailed FailureKind = "verification_failed"
	FailUnknownTool        FailureKind = "unknown_tool"
	FailInvalidArguments   FailureKind = "invalid_arguments"
	FailVendorError        FailureKind = "vendor_error"
	FailVendorTimeout      FailureKind = "vendor_timeout"
)

// Failure describes why a tool call did not produce a payload.
// Subkind is set for vendor_error only, carrying the vendor-response
// classification (unauthorized, not_found, busy, unsupported,
// rate_limited, unavailable).
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Subkind string      `json:"subkind,omitempty"`
	Message string      `json:"message"`
}

// Result is the uniform outcome of one tool invocation: a success payload
// or a structured failure, never both.
type Result struct {
	Tool    string                 `json:"tool"`
	OK      bool                   `json:"ok"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Failure *Failure               `json:"failure,omitempty"`
}

func successResult(tool string, payload map[string]interface{}) *Result {
	return &Result{Tool: tool, OK: true, Payload: payload}
}

func failResult(tool string, kind FailureKind, subkind, message string) *Result {
	return &Result{Tool: tool, Failure: &Failure{Kind: kind, Subkind: subkind, Message: message}}
}
