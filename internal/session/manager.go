// Package session owns the access/refresh token pair this process holds
// against the notebook service's issuer, and serializes refresh attempts so
// concurrent 401s trigger exactly one refresh call.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"knowledgebase/internal/utils"
)

// expiryBuffer is how long before expiry a token is treated as stale.
const expiryBuffer = 30 * time.Second

// flightKey is the single singleflight key for all login/refresh work. Ensure
// and OnUnauthorized share it: the refresh token is single-use under issuers
// that rotate on use, so there must never be two refreshes in flight.
const flightKey = "auth"

var (
	// ErrNoSession means there is no token pair and no way to mint one short
	// of a fresh login.
	ErrNoSession = errors.New("no active session")
	// ErrAuthInvalid means the refresh token was rejected; the session has
	// been cleared and the caller must re-authenticate.
	ErrAuthInvalid = errors.New("refresh token rejected")
)

// Tokens is the pair returned by the issuer.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
}

// LoginFunc performs a fresh credential login against the issuer.
type LoginFunc func(ctx context.Context) (*Tokens, error)

// RefreshFunc exchanges a refresh token for a new pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (*Tokens, error)

type Manager struct {
	mu        sync.Mutex
	access    string
	refresh   string
	expiresAt time.Time

	flight    singleflight.Group
	login     LoginFunc
	refreshFn RefreshFunc
	logger    *utils.Logger
}

func NewManager(login LoginFunc, refresh RefreshFunc, logger *utils.Logger) *Manager {
	return &Manager{
		login:     login,
		refreshFn: refresh,
		logger:    logger.Component("session"),
	}
}

// Attach injects the current access token into req. The refresh and login
// calls themselves must not go through Attach, or an expired token would
// recurse into its own refresh. A cleared session attaches nothing.
func (m *Manager) Attach(req *http.Request) {
	m.mu.Lock()
	token := m.access
	m.mu.Unlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Ensure returns a usable access token, logging in or refreshing as needed.
// Concurrent callers share a single in-flight login/refresh.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.mu.Lock()
	token := m.access
	fresh := time.Now().Add(expiryBuffer).Before(m.expiresAt)
	m.mu.Unlock()

	if token != "" && fresh {
		return token, nil
	}

	v, err, _ := m.flight.Do(flightKey, func() (any, error) {
		return m.establish(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// OnUnauthorized is invoked after a request failed with an authentication
// error. All concurrent callers await one refresh and observe its single
// outcome: the new access token, or ErrAuthInvalid after the session has
// been cleared.
func (m *Manager) OnUnauthorized(ctx context.Context) (string, error) {
	v, err, shared := m.flight.Do(flightKey, func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("refresh deduplicated across concurrent callers")
	}
	return v.(string), nil
}

// HasSession reports whether a token pair is currently held.
func (m *Manager) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access != ""
}

// SetTokens replaces the held pair.
func (m *Manager) SetTokens(t *Tokens) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = t.AccessToken
	m.refresh = t.RefreshToken
	m.expiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Clear drops all session state.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = ""
	m.refresh = ""
	m.expiresAt = time.Time{}
}

// establish refreshes when a refresh token is held, otherwise logs in.
func (m *Manager) establish(ctx context.Context) (string, error) {
	m.mu.Lock()
	refreshToken := m.refresh
	m.mu.Unlock()

	if refreshToken != "" {
		token, err := m.doRefresh(ctx)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrAuthInvalid) {
			return "", err
		}
		// refresh token revoked; fall through to a fresh login
	}

	tokens, err := m.login(ctx)
	if err != nil {
		return "", err
	}
	m.SetTokens(tokens)
	m.logger.Info("session established")
	return tokens.AccessToken, nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	refreshToken := m.refresh
	m.mu.Unlock()

	if refreshToken == "" {
		return "", ErrNoSession
	}

	tokens, err := m.refreshFn(ctx, refreshToken)
	if err != nil {
		// A rejected refresh token is terminal for the session. Transport
		// errors are not: the pair stays so a later attempt can succeed.
		if errors.Is(err, ErrAuthInvalid) {
			m.Clear()
			m.logger.Warn("refresh token rejected, session cleared")
			return "", ErrAuthInvalid
		}
		return "", err
	}

	m.SetTokens(tokens)
	m.logger.Info("access token refreshed")
	return tokens.AccessToken, nil
}
