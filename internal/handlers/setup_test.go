package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/session"
)

// fakeAuthClient implements session.AuthClient for testing
type fakeAuthClient struct {
	loginFunc        func(ctx context.Context, email, password string) (*bambu.LoginResult, error)
	requestCodeFunc  func(ctx context.Context, email string) error
	verifyFunc       func(ctx context.Context, email, code string) (*bambu.LoginResult, error)
	requestCodeCalls int
}

func (f *fakeAuthClient) Login(ctx context.Context, email, password string) (*bambu.LoginResult, error) {
	if f.loginFunc != nil {
		return f.loginFunc(ctx, email, password)
	}
	return &bambu.LoginResult{AccessToken: "tok-test", ExpiresIn: 3600}, nil
}

func (f *fakeAuthClient) RequestEmailCode(ctx context.Context, email string) error {
	f.requestCodeCalls++
	if f.requestCodeFunc != nil {
		return f.requestCodeFunc(ctx, email)
	}
	return nil
}

func (f *fakeAuthClient) VerifyCode(ctx context.Context, email, code string) (*bambu.LoginResult, error) {
	if f.verifyFunc != nil {
		return f.verifyFunc(ctx, email, code)
	}
	return &bambu.LoginResult{AccessToken: "tok-verified", ExpiresIn: 3600}, nil
}

// challengeLogin makes the fake vendor demand an emailed code on every login
func challengeLogin(ctx context.Context, email, password string) (*bambu.LoginResult, error) {
	return &bambu.LoginResult{LoginType: "verifyCode"}, nil
}

func newSetupHandler(auth *fakeAuthClient, configure func(*common.Config)) (*SetupHandler, *session.Manager) {
	cfg := common.NewDefaultConfig()
	if configure != nil {
		configure(cfg)
	}
	mgr := session.NewManager(auth, "", "", common.GetLogger())
	return NewSetupHandler(mgr, cfg, common.GetLogger()), mgr
}

func postJSON(handler http.HandlerFunc, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestLoginHandler_TokenIssued(t *testing.T) {
	auth := &fakeAuthClient{}
	handler, mgr := newSetupHandler(auth, nil)

	rec := postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["has_token"] != true {
		t.Errorf("Expected has_token true, got %v", body["has_token"])
	}
	if body["token"] != "tok-test" {
		t.Errorf("Expected token 'tok-test', got %v", body["token"])
	}
	if !strings.Contains(body["instructions"].(string), "BAMBUCLOUD_ACCOUNT_TOKEN") {
		t.Errorf("Expected instructions to name the token env var, got %v", body["instructions"])
	}

	if !mgr.Status().Authenticated {
		t.Error("Expected session to be authenticated after immediate token")
	}
}

func TestLoginHandler_CodeSent(t *testing.T) {
	auth := &fakeAuthClient{loginFunc: challengeLogin}
	handler, mgr := newSetupHandler(auth, nil)

	rec := postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["has_token"] != false {
		t.Errorf("Expected has_token false, got %v", body["has_token"])
	}
	if body["message"] != "Verification code sent to your email" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
	if auth.requestCodeCalls != 1 {
		t.Errorf("Expected 1 code dispatch, got %d", auth.requestCodeCalls)
	}

	status := mgr.Status()
	if status.Authenticated {
		t.Error("Expected session to remain unauthenticated until verification")
	}
	if !status.PendingVerification {
		t.Error("Expected a pending verification after code dispatch")
	}
}

func TestLoginHandler_MissingFields(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, nil)

	rec := postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com"}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["error"] != "email and password are required" {
		t.Errorf("Unexpected error message: %v", body["error"])
	}
}

func TestLoginHandler_InvalidJSON(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, nil)

	rec := postJSON(handler.LoginHandler, "/setup/login", `{not json`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	auth := &fakeAuthClient{
		loginFunc: func(ctx context.Context, email, password string) (*bambu.LoginResult, error) {
			return nil, &bambu.APIError{
				StatusCode: http.StatusUnauthorized,
				Kind:       bambu.KindAuthorization,
				Message:    "Invalid username or password",
				Endpoint:   "/v1/user-service/user/login",
			}
		},
	}
	handler, _ := newSetupHandler(auth, nil)

	rec := postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"wrong"}`, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if !strings.Contains(body["error"].(string), "Invalid username or password") {
		t.Errorf("Expected vendor message to pass through, got %v", body["error"])
	}
}

func TestLoginHandler_SetupKeyGuard(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, func(cfg *common.Config) {
		cfg.Setup.Key = "sekrit"
	})

	// Missing key
	rec := postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403 without key, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "Invalid or missing X-Setup-Key header" {
		t.Errorf("Unexpected error message: %v", body["error"])
	}

	// Wrong key
	rec = postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`,
		map[string]string{"X-Setup-Key": "wrong"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 with wrong key, got %d", rec.Code)
	}

	// Correct key
	rec = postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`,
		map[string]string{"X-Setup-Key": "sekrit"})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 with correct key, got %d", rec.Code)
	}
}

func TestVerifyHandler_CompletesSetup(t *testing.T) {
	auth := &fakeAuthClient{
		loginFunc: challengeLogin,
		verifyFunc: func(ctx context.Context, email, code string) (*bambu.LoginResult, error) {
			if code != "123456" {
				return nil, &bambu.APIError{
					StatusCode: http.StatusUnauthorized,
					Kind:       bambu.KindAuthorization,
					Message:    "Verification code incorrect",
				}
			}
			return &bambu.LoginResult{AccessToken: "tok-verified", ExpiresIn: 3600}, nil
		},
	}
	handler, mgr := newSetupHandler(auth, nil)

	// Start the flow
	rec := postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Login failed: %d", rec.Code)
	}

	// Wrong code: rejected, challenge survives
	rec = postJSON(handler.VerifyHandler, "/setup/verify", `{"email":"user@example.com","code":"999999"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 for wrong code, got %d", rec.Code)
	}
	if !mgr.Status().PendingVerification {
		t.Fatal("Expected challenge to survive a wrong code")
	}

	// Correct code on retry
	rec = postJSON(handler.VerifyHandler, "/setup/verify", `{"email":"user@example.com","code":"123456"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["token"] != "tok-verified" {
		t.Errorf("Expected token 'tok-verified', got %v", body["token"])
	}

	status := mgr.Status()
	if !status.Authenticated {
		t.Error("Expected session to be authenticated after verification")
	}
	if status.PendingVerification {
		t.Error("Expected pending challenge to be consumed")
	}
}

func TestVerifyHandler_NoPendingChallenge(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, nil)

	rec := postJSON(handler.VerifyHandler, "/setup/verify", `{"email":"user@example.com","code":"123456"}`, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rec.Code)
	}
}

func TestVerifyHandler_MissingFields(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, nil)

	rec := postJSON(handler.VerifyHandler, "/setup/verify", `{"email":"user@example.com"}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestStatusHandler_Unauthenticated(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, func(cfg *common.Config) {
		cfg.Printer.Serial = "01S00C000000000"
	})

	req := httptest.NewRequest("GET", "/setup/status", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["authenticated"] != false {
		t.Errorf("Expected authenticated false, got %v", body["authenticated"])
	}
	if body["device_id"] != "01S00C000000000" {
		t.Errorf("Expected configured device id, got %v", body["device_id"])
	}
	if !strings.Contains(body["message"].(string), "Setup required") {
		t.Errorf("Unexpected message: %v", body["message"])
	}
	if _, present := body["token_expiry"]; present {
		t.Error("Expected no token_expiry before setup")
	}
}

func TestStatusHandler_Authenticated(t *testing.T) {
	auth := &fakeAuthClient{}
	handler, _ := newSetupHandler(auth, nil)

	postJSON(handler.LoginHandler, "/setup/login", `{"email":"User@Example.com","password":"pw"}`, nil)

	req := httptest.NewRequest("GET", "/setup/status", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)

	body := decodeBody(t, rec)
	if body["authenticated"] != true {
		t.Errorf("Expected authenticated true, got %v", body["authenticated"])
	}
	if body["email"] != "user@example.com" {
		t.Errorf("Expected normalized email, got %v", body["email"])
	}
	if body["token_expiry"] == nil {
		t.Error("Expected token_expiry to be reported")
	}
	if !strings.Contains(body["message"].(string), "Setup complete") {
		t.Errorf("Unexpected message: %v", body["message"])
	}
}

func TestStatusHandler_NotGuardedBySetupKey(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, func(cfg *common.Config) {
		cfg.Setup.Key = "sekrit"
	})

	// No X-Setup-Key header: status stays reachable as a readiness probe
	req := httptest.NewRequest("GET", "/setup/status", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 without setup key, got %d", rec.Code)
	}
}

func TestClearSessionHandler(t *testing.T) {
	auth := &fakeAuthClient{loginFunc: challengeLogin}
	handler, mgr := newSetupHandler(auth, nil)

	postJSON(handler.LoginHandler, "/setup/login", `{"email":"user@example.com","password":"pw"}`, nil)
	if !mgr.Status().PendingVerification {
		t.Fatal("Expected a pending verification to clear")
	}

	// URL-escaped email in the path segment
	req := httptest.NewRequest("DELETE", "/setup/session/user%40example.com", nil)
	rec := httptest.NewRecorder()
	handler.ClearSessionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Session cleared for user@example.com" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
	if mgr.Status().PendingVerification {
		t.Error("Expected pending verification to be gone")
	}

	// Second delete: nothing left to clear
	req = httptest.NewRequest("DELETE", "/setup/session/user%40example.com", nil)
	rec = httptest.NewRecorder()
	handler.ClearSessionHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", rec.Code)
	}
}

func TestClearSessionHandler_EmptyEmail(t *testing.T) {
	handler, _ := newSetupHandler(&fakeAuthClient{}, nil)

	req := httptest.NewRequest("DELETE", "/setup/session/", nil)
	rec := httptest.NewRecorder()
	handler.ClearSessionHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}
