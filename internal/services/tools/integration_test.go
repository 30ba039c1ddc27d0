package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
	"github.com/ternarybob/bambucloud/internal/services/session"
)

// vendorStub is an httptest stand-in for the Bambu cloud API, speaking the
// real wire shapes so these tests exercise the actual client, session
// manager, and dispatcher together.
type vendorStub struct {
	serial string

	// Tokens the stub accepts on device endpoints
	validTokens map[string]bool

	// Login behavior
	challengeLogin bool   // Respond to password logins with a code challenge
	issueToken     string // Token issued by password login / code verification
	verifyCode     string // The one code VerifyCode accepts

	loginCalls  int
	verifyCalls int
	codeSent    bool
	bindCalls   int
}

func (v *vendorStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/user-service/user/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		if code, ok := body["code"]; ok {
			v.verifyCalls++
			if code != v.verifyCode {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"message": "Verification code incorrect"})
				return
			}
			v.validTokens[v.issueToken] = true
			json.NewEncoder(w).Encode(map[string]interface{}{"accessToken": v.issueToken, "expiresIn": 3600})
			return
		}

		v.loginCalls++
		if v.challengeLogin {
			json.NewEncoder(w).Encode(map[string]string{"loginType": "verifyCode"})
			return
		}
		v.validTokens[v.issueToken] = true
		json.NewEncoder(w).Encode(map[string]interface{}{"accessToken": v.issueToken, "expiresIn": 3600})
	})

	mux.HandleFunc("/v1/user-service/user/sendemail/code", func(w http.ResponseWriter, r *http.Request) {
		v.codeSent = true
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/v1/iot-service/api/user/bind", func(w http.ResponseWriter, r *http.Request) {
		v.bindCalls++
		if !v.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"devices": []map[string]interface{}{
				{"dev_id": v.serial, "name": "Workshop", "online": true, "print_status": "IDLE", "dev_product_name": "P1S"},
			},
		})
	})

	mux.HandleFunc("/v1/user-service/my/tasks", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"total": 0, "hits": []interface{}{}})
	})

	mux.HandleFunc("/v1/iot-service/api/user/print/start", func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["file_id"] != "file-1" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "file does not exist"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-9", "status": "started"})
	})

	return mux
}

func (v *vendorStub) authorized(r *http.Request) bool {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	return len(auth) > len(prefix) && v.validTokens[auth[len(prefix):]]
}

type integrationEnv struct {
	stub    *vendorStub
	service *Service
	manager *session.Manager
}

func newIntegrationEnv(t *testing.T, stub *vendorStub, email, password, seedToken string) *integrationEnv {
	t.Helper()

	cfg := common.NewDefaultConfig()
	stub.serial = cfg.Printer.Serial
	if stub.validTokens == nil {
		stub.validTokens = map[string]bool{}
	}

	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client := bambu.NewClient(
		bambu.WithBaseURL(server.URL),
		bambu.WithHTTPClient(server.Client()),
		bambu.WithRateLimit(100),
	)

	var opts []session.ManagerOption
	if seedToken != "" {
		opts = append(opts, session.WithSeedToken(seedToken))
	}
	manager := session.NewManager(client, email, password, common.GetLogger(), opts...)

	return &integrationEnv{
		stub:    stub,
		service: NewService(client, manager, cfg, common.GetLogger()),
		manager: manager,
	}
}

// A seeded token is used as-is: status flows through with no login traffic.
func TestEndToEndSeededToken(t *testing.T) {
	stub := &vendorStub{validTokens: map[string]bool{"tok-seeded": true}}
	env := newIntegrationEnv(t, stub, "", "", "tok-seeded")

	result := env.service.Call(context.Background(), "get_printer_status", nil)

	require.Nil(t, result.Failure)
	assert.True(t, result.OK)
	assert.Equal(t, true, result.Payload["online"])
	assert.Equal(t, 0, stub.loginCalls)
}

// The full emailed-code setup: challenge, wrong code retried, token cached,
// and a tool call riding the new session without another login.
func TestEndToEndVerificationFlow(t *testing.T) {
	stub := &vendorStub{
		challengeLogin: true,
		issueToken:     "tok-verified",
		verifyCode:     "123456",
	}
	env := newIntegrationEnv(t, stub, "", "", "")
	ctx := context.Background()

	begin, err := env.manager.BeginVerification(ctx, "user@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, begin.CodeSent)
	assert.True(t, stub.codeSent)

	// Wrong code: rejected, challenge survives
	_, err = env.manager.CompleteVerification(ctx, "user@example.com", "999999")
	require.ErrorIs(t, err, session.ErrVerificationFailed)
	assert.True(t, env.manager.Status().PendingVerification)

	token, err := env.manager.CompleteVerification(ctx, "user@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok-verified", token)
	assert.True(t, env.manager.Status().Authenticated)

	result := env.service.Call(ctx, "get_printer_status", nil)
	require.Nil(t, result.Failure)
	assert.Equal(t, 2, stub.verifyCalls)
	assert.Equal(t, 1, stub.loginCalls) // Only the initial challenge login
}

// A not-found vendor rejection surfaces verbatim and leaves the session
// usable for the next call.
func TestEndToEndStartPrintNotFound(t *testing.T) {
	stub := &vendorStub{validTokens: map[string]bool{"tok-seeded": true}}
	env := newIntegrationEnv(t, stub, "", "", "tok-seeded")
	ctx := context.Background()

	result := env.service.Call(ctx, "start_print", map[string]interface{}{"file_id": "file-404"})

	require.NotNil(t, result.Failure)
	assert.Equal(t, FailVendorError, result.Failure.Kind)
	assert.Equal(t, "not_found", result.Failure.Subkind)
	assert.Equal(t, "file does not exist", result.Failure.Message)
	assert.True(t, env.manager.Status().Authenticated)

	result = env.service.Call(ctx, "start_print", map[string]interface{}{"file_id": "file-1"})
	require.Nil(t, result.Failure)
	assert.Equal(t, "task-9", result.Payload["task_id"])
	assert.Equal(t, 0, stub.loginCalls)
}

// A vendor-side token expiry triggers exactly one relogin, and the retried
// call succeeds with the fresh token.
func TestEndToEndRefreshStaleToken(t *testing.T) {
	stub := &vendorStub{issueToken: "tok-fresh"}
	env := newIntegrationEnv(t, stub, "user@example.com", "pw", "tok-stale")

	result := env.service.Call(context.Background(), "get_printer_status", nil)

	require.Nil(t, result.Failure)
	assert.True(t, result.OK)
	assert.Equal(t, 1, stub.loginCalls)
	assert.Equal(t, 2, stub.bindCalls) // Rejected once, retried once
}
