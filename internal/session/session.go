// Package session scopes per-conversation state. Each session owns its own
// thinking store so concurrent sessions (multiple tabs, multiple users) stay
// isolated.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ponderlabs/ponder/internal/thinking"
)

// Session is the per-conversation state surviving between requests.
type Session struct {
	ID       string
	Thinking *thinking.Store
}

// Manager hands out sessions by id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it on first use. An empty id gets
// a fresh session under a generated id.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id, Thinking: thinking.NewStore()}
	m.sessions[id] = s
	return s
}

// Reset tears the session down; the next Get for the same id starts clean.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.Thinking.Clear()
		delete(m.sessions, id)
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}
