package session

import (
	"context"
	"sync"

	"github.com/kpcai/examfront/internal/api"
)

type entry struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// Manager owns at most one exam session per logged-in browser, keyed by the
// access token carried in the session cookie. It hands out fresh Session
// instances on exam start and tears the old one down, so state from a
// previous attempt can never bleed into the next.
type Manager struct {
	client *api.Client

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a manager that builds sessions on the given client.
func NewManager(client *api.Client) *Manager {
	return &Manager{
		client:   client,
		sessions: make(map[string]*entry),
	}
}

// Get returns the live session for a token, or nil.
func (m *Manager) Get(token string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[token]; ok {
		return e.session
	}
	return nil
}

// Begin replaces any previous session for the token with a fresh one. The
// old session's clock is stopped first.
func (m *Manager) Begin(token string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[token]; ok {
		old.cancel()
		delete(m.sessions, token)
	}
	ctx, cancel := context.WithCancel(api.ContextWithToken(context.Background(), token))
	e := &entry{session: New(m.client), ctx: ctx, cancel: cancel}
	m.sessions[token] = e
	return e.session
}

// StartClock launches the countdown goroutine for the token's session.
// Called once the server has acknowledged the exam start; a second call for
// the same session is a no-op.
func (m *Manager) StartClock(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[token]
	if !ok || e.running {
		return
	}
	e.running = true
	go e.session.RunClock(e.ctx)
}

// Drop stops and forgets the token's session. Used on logout and on
// authentication teardown.
func (m *Manager) Drop(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[token]; ok {
		e.cancel()
		delete(m.sessions, token)
	}
}
