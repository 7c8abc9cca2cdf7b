// Package session serves live question sessions over WebSocket.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Conn is the part of a WebSocket connection the manager needs.
type Conn interface {
	Close(code websocket.StatusCode, reason string) error
}

type entry struct {
	conn     Conn
	lastSeen time.Time
}

// Manager tracks the active connection of each (user, session) pair. A newer
// connection for the same pair replaces and closes the older one.
type Manager struct {
	mu     sync.RWMutex
	active map[string]map[string]*entry
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a new session manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active: make(map[string]map[string]*entry),
		now:    time.Now,
		logger: logger,
	}
}

// GetActive returns the active connection for a user and session.
func (m *Manager) GetActive(userID, sessionID string) Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.active[userID][sessionID]; ok {
		return e.conn
	}
	return nil
}

// Register adds a connection for a user/session, closing any previous one.
// The previous connection is closed in the background: a close waits for the
// peer's handshake and must not hold up the new session.
func (m *Manager) Register(userID, sessionID string, conn Conn) {
	m.mu.Lock()
	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*entry)
	}

	var replaced Conn
	if existing, exists := m.active[userID][sessionID]; exists && existing.conn != conn {
		replaced = existing.conn
	}

	m.active[userID][sessionID] = &entry{conn: conn, lastSeen: m.now()}
	activeSessions.Set(float64(m.countLocked()))
	m.mu.Unlock()

	if replaced != nil {
		go func() { _ = replaced.Close(websocket.StatusNormalClosure, "session replaced") }()
	}
	m.logger.Info("Question session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the active connection.
func (m *Manager) Unregister(userID, sessionID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	if current, exists := sessions[sessionID]; exists && current.conn == conn {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
		activeSessions.Set(float64(m.countLocked()))
		m.logger.Info("Question session unregistered", "user_id", userID, "session_id", sessionID)
	}
}

// Touch records activity on a session.
func (m *Manager) Touch(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.active[userID][sessionID]; ok {
		e.lastSeen = m.now()
	}
}

// CloseUser terminates all active sessions for a user and waits for the
// closes to finish. The manager stays usable while they run.
func (m *Manager) CloseUser(userID string) {
	m.mu.Lock()
	sessions, ok := m.active[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.active, userID)
	activeSessions.Set(float64(m.countLocked()))
	m.mu.Unlock()

	var wg sync.WaitGroup
	for sid, e := range sessions {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			_ = c.Close(websocket.StatusNormalClosure, "session closed")
		}(e.conn)
		m.logger.Info("Question session closed", "user_id", userID, "session_id", sid)
	}
	wg.Wait()
}

// CloseIdle removes sessions without activity for longer than ttl and closes
// them in the background. It returns the number of sessions removed.
func (m *Manager) CloseIdle(ttl time.Duration) int {
	m.mu.Lock()
	cutoff := m.now().Add(-ttl)
	var idle []Conn
	for userID, sessions := range m.active {
		for sid, e := range sessions {
			if !e.lastSeen.Before(cutoff) {
				continue
			}
			idle = append(idle, e.conn)
			delete(sessions, sid)
			m.logger.Info("Idle question session closed", "user_id", userID, "session_id", sid)
		}
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
	}
	if len(idle) > 0 {
		activeSessions.Set(float64(m.countLocked()))
	}
	m.mu.Unlock()

	for _, c := range idle {
		go func(c Conn) { _ = c.Close(websocket.StatusGoingAway, "session idle") }(c)
	}
	return len(idle)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked()
}

func (m *Manager) countLocked() int {
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}
