// Package session owns the vendor access token lifecycle: acquisition via
// password grant, the two-phase emailed-code verification flow, in-memory
// caching, and forced refresh after a downstream authorization failure.
// The token never leaves the process; persisting it across restarts is the
// operator's responsibility via configuration.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/bambucloud/internal/bambu"
	"github.com/ternarybob/bambucloud/internal/common"
)

const defaultPendingTTL = 30 * time.Minute

var (
	// ErrInvalidCredentials means the vendor rejected the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAuthRequired means no usable token exists and none can be obtained
	// without operator action (missing credentials or mandatory verification).
	ErrAuthRequired = errors.New("authentication required")

	// ErrNoPendingChallenge means no live verification challenge exists for
	// the given email.
	ErrNoPendingChallenge = errors.New("no pending verification for this email")

	// ErrVerificationFailed means the vendor rejected the submitted code.
	// The pending challenge is retained so the code can be retried.
	ErrVerificationFailed = errors.New("verification failed")
)

// AuthClient is the slice of the vendor client the manager needs for
// identity operations.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*bambu.LoginResult, error)
	RequestEmailCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (*bambu.LoginResult, error)
}

// BeginResult is the outcome of BeginVerification: either the vendor issued
// a token immediately, or a verification code was dispatched out-of-band.
type BeginResult struct {
	TokenIssued bool
	Token       string
	CodeSent    bool
}

// Status is a point-in-time read of the session state. Computing it never
// mutates the session and never touches the network.
type Status struct {
	Authenticated       bool
	Email               string
	TokenExpiry         time.Time
	PendingVerification bool
}

type pendingChallenge struct {
	id        string
	createdAt time.Time
}

// Manager guards the single account session: the cached token and any
// pending verification challenges. All mutable state sits behind one
// RWMutex; vendor calls are made without holding it, so two concurrent
// refreshes may race, which costs a redundant login but never corrupts
// the token (replacement is a single assignment under the write lock).
type Manager struct {
	auth     AuthClient
	email    string
	password string
	logger   arbor.ILogger

	nowFunc    func() time.Time
	pendingTTL time.Duration

	mu           sync.RWMutex
	token        *oauth2.Token
	sessionEmail string
	pending      map[string]*pendingChallenge
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNow sets the clock function (primarily for testing).
func WithNow(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithPendingTTL overrides the inactivity window after which a pending
// verification challenge is treated as expired.
func WithPendingTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pendingTTL = ttl
	}
}

// WithSeedToken preloads a token obtained out-of-band (e.g. from a previous
// run, persisted as configuration). Expiry is recovered from the token's
// own exp claim; an opaque token is cached as never known-expired.
func WithSeedToken(raw string) ManagerOption {
	return func(m *Manager) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		m.token = &oauth2.Token{
			AccessToken: raw,
			Expiry:      bambu.TokenExpiry(raw),
		}
		m.sessionEmail = m.email
	}
}

// NewManager creates a session manager for the configured account.
func NewManager(auth AuthClient, email, password string, logger arbor.ILogger, opts ...ManagerOption) *Manager {
	m := &Manager{
		auth:       auth,
		email:      normalizeEmail(email),
		password:   password,
		logger:     logger,
		nowFunc:    time.Now,
		pendingTTL: defaultPendingTTL,
		pending:    make(map[string]*pendingChallenge),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.token != nil {
		m.logger.Info().
			Str("email", m.sessionEmail).
			Str("expiry", expiryLabel(m.token.Expiry)).
			Msg("Session seeded from configured token")
	}

	return m
}

// Acquire returns a valid access token, performing a password-grant login
// only when the cached token is absent or known-expired.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.token.Valid() {
		token := m.token.AccessToken
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	return m.loginAndStore(ctx)
}

// Refresh discards the cached token's validity and performs a fresh
// password-grant login. Used after the vendor rejected the cached token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.logger.Info().Str("email", m.email).Msg("Refreshing session token")
	return m.loginAndStore(ctx)
}

func (m *Manager) loginAndStore(ctx context.Context) (string, error) {
	if m.email == "" || m.password == "" {
		return "", fmt.Errorf("%w: no account credentials configured, complete setup first", ErrAuthRequired)
	}

	result, err := m.auth.Login(ctx, m.email, m.password)
	if err != nil {
		if bambu.IsAuthError(err) {
			return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, bambu.MessageOf(err))
		}
		return "", err
	}

	if result.NeedsVerification() {
		return "", fmt.Errorf("%w: account requires an emailed verification code, complete setup first", ErrAuthRequired)
	}

	token := m.storeToken(m.email, result)
	m.logger.Info().
		Str("email", m.email).
		Str("expiry", expiryLabel(token.Expiry)).
		Msg("Session token acquired")

	return token.AccessToken, nil
}

// BeginVerification starts the login flow for the given account. When the
// vendor issues a token without a challenge it is cached immediately;
// otherwise a verification code is dispatched to the account's email and a
// pending challenge is recorded (at most one per email, newest wins).
func (m *Manager) BeginVerification(ctx context.Context, email, password string) (*BeginResult, error) {
	key := normalizeEmail(email)

	result, err := m.auth.Login(ctx, email, password)
	if err != nil {
		if bambu.IsAuthError(err) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, bambu.MessageOf(err))
		}
		return nil, err
	}

	if !result.NeedsVerification() {
		token := m.storeToken(key, result)
		m.logger.Info().Str("email", key).Msg("Login succeeded without verification")
		return &BeginResult{TokenIssued: true, Token: token.AccessToken}, nil
	}

	if err := m.auth.RequestEmailCode(ctx, email); err != nil {
		return nil, err
	}

	challenge := &pendingChallenge{
		id:        common.NewChallengeID(),
		createdAt: m.nowFunc(),
	}

	m.mu.Lock()
	m.pending[key] = challenge
	m.mu.Unlock()

	m.logger.Info().
		Str("email", key).
		Str("challenge_id", challenge.id).
		Msg("Verification code dispatched")

	return &BeginResult{CodeSent: true}, nil
}

// CompleteVerification exchanges an emailed code for a token. The pending
// challenge must exist and be younger than the pending TTL; expired entries
// are swept here, at lookup time. A vendor-rejected code retains the
// challenge so a corrected code can be submitted.
func (m *Manager) CompleteVerification(ctx context.Context, email, code string) (string, error) {
	key := normalizeEmail(email)

	m.mu.Lock()
	challenge, ok := m.pending[key]
	if ok && m.expired(challenge) {
		delete(m.pending, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPendingChallenge, key)
	}

	result, err := m.auth.VerifyCode(ctx, email, code)
	if err != nil {
		if bambu.IsAuthError(err) {
			m.logger.Warn().
				Str("email", key).
				Str("challenge_id", challenge.id).
				Msg("Verification code rejected")
			return "", fmt.Errorf("%w: %s", ErrVerificationFailed, bambu.MessageOf(err))
		}
		return "", err
	}

	if result.NeedsVerification() {
		return "", fmt.Errorf("%w: vendor did not issue a token", ErrVerificationFailed)
	}

	token := m.storeToken(key, result)

	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()

	m.logger.Info().
		Str("email", key).
		Str("challenge_id", challenge.id).
		Msg("Verification complete, session token stored")

	return token.AccessToken, nil
}

// ClearPending drops the pending challenge for an email. Returns false when
// none was live (absent or already past the TTL).
func (m *Manager) ClearPending(email string) bool {
	key := normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, ok := m.pending[key]
	if !ok {
		return false
	}

	delete(m.pending, key)
	if m.expired(challenge) {
		return false
	}

	m.logger.Info().Str("email", key).Str("challenge_id", challenge.id).Msg("Pending verification cleared")
	return true
}

// Status reports the current session state without network calls or
// mutation. Expired pending entries are excluded but not swept.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Authenticated: m.token.Valid(),
		Email:         m.sessionEmail,
	}
	if m.token != nil {
		status.TokenExpiry = m.token.Expiry
	}

	for _, challenge := range m.pending {
		if !m.expired(challenge) {
			status.PendingVerification = true
			break
		}
	}

	return status
}

func (m *Manager) storeToken(email string, result *bambu.LoginResult) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Expiry:       result.Expiry(m.nowFunc()),
	}

	m.mu.Lock()
	m.token = token
	m.sessionEmail = email
	m.mu.Unlock()

	return token
}

func (m *Manager) expired(challenge *pendingChallenge) bool {
	return m.nowFunc().Sub(challenge.createdAt) > m.pendingTTL
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func expiryLabel(expiry time.Time) string {
	if expiry.IsZero() {
		return "unknown"
	}
	return expiry.Format(time.RFC3339)
}
