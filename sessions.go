package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/server/internal/protocol"
)

// Session is the authenticated binding between a token, a user, and a
// connection. Sessions are in-memory only; a restart never resurrects one.
type Session struct {
	Token        string
	UserID       int64
	ConnID       uint64
	LastActivity time.Time
}

// SessionManager enforces the single-active-session rule and idle expiry.
type SessionManager struct {
	idle time.Duration

	mu      sync.Mutex
	byToken map[string]*Session
	byUser  map[int64]string
	byConn  map[uint64]string
}

func NewSessionManager(idle time.Duration) *SessionManager {
	return &SessionManager{
		idle:    idle,
		byToken: make(map[string]*Session),
		byUser:  make(map[int64]string),
		byConn:  make(map[uint64]string),
	}
}

// newToken returns an opaque 32-character alphanumeric token.
func newToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Login issues a session for userID bound to connID. A prior session on the
// same connection is invalidated first; a live session for the same user on
// another connection makes the login fail with 409.
func (m *SessionManager) Login(userID int64, connID uint64) (string, *protocol.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(time.Now())

	if tok, ok := m.byConn[connID]; ok {
		m.dropLocked(tok)
	}
	if _, ok := m.byUser[userID]; ok {
		return "", protocol.Errf(protocol.CodeConflict, "already_logged_in")
	}

	s := &Session{
		Token:        newToken(),
		UserID:       userID,
		ConnID:       connID,
		LastActivity: time.Now(),
	}
	m.byToken[s.Token] = s
	m.byUser[userID] = s.Token
	m.byConn[connID] = s.Token
	return s.Token, nil
}

// Validate resolves a token to its user and refreshes last_activity. Expired
// sessions are destroyed on sight, independent of the reaper.
func (m *SessionManager) Validate(token string) (int64, bool) {
	if token == "" {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byToken[token]
	if !ok {
		return 0, false
	}
	now := time.Now()
	if now.Sub(s.LastActivity) > m.idle {
		m.dropLocked(token)
		return 0, false
	}
	s.LastActivity = now
	return s.UserID, true
}

// Logout destroys the session for token. The connection stays open.
func (m *SessionManager) Logout(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[token]; !ok {
		return false
	}
	m.dropLocked(token)
	return true
}

// DropConn destroys whatever session is bound to connID (close, DISCONNECT).
func (m *SessionManager) DropConn(connID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.byConn[connID]; ok {
		m.dropLocked(tok)
	}
}

// UserOfConn returns the user id bound to connID's session, if any.
func (m *SessionManager) UserOfConn(connID uint64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byConn[connID]
	if !ok {
		return 0, false
	}
	return m.byToken[tok].UserID, true
}

// ConnOfUser returns the connection id of the user's live session.
func (m *SessionManager) ConnOfUser(userID int64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byUser[userID]
	if !ok {
		return 0, false
	}
	return m.byToken[tok].ConnID, true
}

// IsOnline reports whether the user has a live session right now.
func (m *SessionManager) IsOnline(userID int64) bool {
	_, ok := m.ConnOfUser(userID)
	return ok
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

func (m *SessionManager) dropLocked(token string) {
	s, ok := m.byToken[token]
	if !ok {
		return
	}
	delete(m.byToken, token)
	delete(m.byUser, s.UserID)
	delete(m.byConn, s.ConnID)
}

func (m *SessionManager) sweepLocked(now time.Time) {
	for tok, s := range m.byToken {
		if now.Sub(s.LastActivity) > m.idle {
			slog.Debug("session expired", "user_id", s.UserID)
			m.dropLocked(tok)
		}
	}
}

// Sweep destroys every session idle past the configured timeout.
func (m *SessionManager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
}

// RunReaper sweeps once per interval until ctx is canceled. The owning
// connections stay open; they just become unauthenticated.
func (m *SessionManager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
