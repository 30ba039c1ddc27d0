// -----------------------------------------------------------------------
// Last Modified: Tuesday, 18th August 2026 9:12:41 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/session"
)

const setupBodyLimit = 64 * 1024

// SetupHandler serves the one-time operator setup flow: login, emailed-code
// verification, session status, and pending-session cleanup. These endpoints
// talk to the session manager directly and never touch the tool dispatcher.
type SetupHandler struct {
	session  *session.Manager
	config   *common.Config
	setupKey string
	logger   arbor.ILogger
}

// NewSetupHandler creates a new setup handler.
func NewSetupHandler(sessionMgr *session.Manager, cfg *common.Config, logger arbor.ILogger) *SetupHandler {
	return &SetupHandler{
		session:  sessionMgr,
		config:   cfg,
		setupKey: cfg.Setup.Key,
		logger:   logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// LoginHandler starts the login flow. The vendor either issues a token
// immediately or emails a verification code for /setup/verify.
func (h *SetupHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") || !h.checkSetupKey(w, r) {
		return
	}

	var req loginRequest
	if err := DecodeJSON(r, &req, setupBodyLimit); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	h.logger.Info().Str("email", req.Email).Msg("Setup login requested")

	result, err := h.session.BeginVerification(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	if result.TokenIssued {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "success",
			"has_token":    true,
			"token":        result.Token,
			"message":      "Authentication successful (no verification required)",
			"instructions": tokenInstructions,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "success",
		"has_token":    false,
		"message":      "Verification code sent to your email",
		"instructions": "Check your email for the verification code, then call POST /setup/verify with your email and code",
	})
}

// VerifyHandler exchanges the emailed code for a token and caches it as the
// live session. The token is also returned so the operator can persist it.
func (h *SetupHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") || !h.checkSetupKey(w, r) {
		return
	}

	var req verifyRequest
	if err := DecodeJSON(r, &req, setupBodyLimit); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Code == "" {
		WriteError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	h.logger.Info().Str("email", req.Email).Msg("Setup verification requested")

	token, err := h.session.CompleteVerification(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "success",
		"token":        token,
		"message":      "Authentication successful",
		"instructions": tokenInstructions,
	})
}

// StatusHandler reports whether a usable token is cached. Not guarded by the
// setup key: it exposes no credentials and doubles as a readiness probe
// during setup.
func (h *SetupHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := h.session.Status()

	body := map[string]interface{}{
		"authenticated":        status.Authenticated,
		"pending_verification": status.PendingVerification,
		"device_id":            h.config.Printer.Serial,
	}
	if status.Email != "" {
		body["email"] = status.Email
	}
	if !status.TokenExpiry.IsZero() {
		body["token_expiry"] = status.TokenExpiry.Format(time.RFC3339)
	}
	if status.Authenticated {
		body["message"] = "Setup complete. Server is ready to use."
	} else {
		body["message"] = "Setup required. Call POST /setup/login to begin."
	}

	WriteJSON(w, http.StatusOK, body)
}

// ClearSessionHandler drops the pending verification for an email so the
// setup flow can be restarted. Routed from DELETE /setup/session/{email}.
func (h *SetupHandler) ClearSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") || !h.checkSetupKey(w, r) {
		return
	}

	email := strings.TrimPrefix(r.URL.Path, "/setup/session/")
	if decoded, err := url.PathUnescape(email); err == nil {
		email = decoded
	}
	if email == "" {
		WriteError(w, http.StatusBadRequest, "email path segment is required")
		return
	}

	if !h.session.ClearPending(email) {
		WriteError(w, http.StatusNotFound, "No pending session found")
		return
	}

	WriteSuccess(w, "Session cleared for "+email)
}

func (h *SetupHandler) checkSetupKey(w http.ResponseWriter, r *http.Request) bool {
	if h.setupKey == "" {
		return true
	}
	if r.Header.Get("X-Setup-Key") != h.setupKey {
		WriteError(w, http.StatusForbidden, "Invalid or missing X-Setup-Key header")
		return false
	}
	return true
}

func (h *SetupHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, session.ErrVerificationFailed):
		WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrNoPendingChallenge):
		WriteError(w, http.StatusNotFound, err.Error())
	case bambu.IsTimeout(err):
		WriteError(w, http.StatusGatewayTimeout, err.Error())
	default:
		WriteError(w, http.StatusBadGateway, err.Error())
	}
}

const tokenInstructions = "Copy this token and set it as the account token " +
	"(BAMBUCLOUD_ACCOUNT_TOKEN, or [account] token in bambucloud.toml), then " +
	"restart the service so it survives redeploys. The running session already uses it."
