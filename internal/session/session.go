// Package session owns the authentication signal consumed by both engines.
// Token issuance happens elsewhere; only the observable "is authenticated"
// state and its transitions live here.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manager holds the access token for one profile and notifies subscribers
// on every authenticated/unauthenticated transition. It implements both
// port.Session and port.TokenSource.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	token   string
	nextSub int
	subs    map[int]func(authenticated bool)
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		subs:   make(map[int]func(bool)),
	}
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Authenticated reports whether a usable token is present. An expired token
// counts as unauthenticated even before SetToken/Logout runs.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	return usable(token, m.logger)
}

// SetToken installs a fresh access token, e.g. after login.
func (m *Manager) SetToken(token string) {
	m.swap(token)
}

// Logout clears the token. Engines subscribed to the manager reset their
// mode in response.
func (m *Manager) Logout() {
	m.swap("")
}

func (m *Manager) swap(token string) {
	m.mu.Lock()
	was := usable(m.token, m.logger)
	m.token = token
	now := usable(token, m.logger)

	var fns []func(bool)
	if was != now {
		fns = make([]func(bool), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	// Notify outside the lock so subscribers may call back into the manager.
	for _, fn := range fns {
		fn(now)
	}
}

// Subscribe registers fn for auth transitions. The returned func removes
// the subscription.
func (m *Manager) Subscribe(fn func(authenticated bool)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// usable reports whether the token should be treated as a live session.
// The client cannot verify the signature (it has no key); it only inspects
// the exp claim, the same way the original storefront treated any present
// token as a session until the server rejected it.
func usable(token string, logger *slog.Logger) bool {
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque (non-JWT) tokens are passed through as-is.
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	if exp.Before(time.Now()) {
		logger.Debug("session token expired", "expired_at", exp.Time)
		return false
	}
	return true
}
