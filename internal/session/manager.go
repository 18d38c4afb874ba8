// Package session holds unlock sessions: the in-memory binding between a
// bearer token and a decrypted master key. Sessions never survive a process
// restart; the master key is never persisted unencrypted.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/mkraev/vaultcore/internal/model"
)

// tokenSize is the bearer token entropy in bytes.
const tokenSize = 32

// Session is a live unlock session. Key holds the master key sealed in a
// memguard enclave; open it only for the duration of one operation.
type Session struct {
	UserID       string
	Key          *memguard.Enclave
	LastActivity time.Time
}

// Manager owns the token → session mapping for one vault service instance.
// It realizes a sliding-window idle timeout: every successful Touch pushes
// the expiry forward.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a session manager with the given idle timeout.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// IdleTimeout returns the configured sliding idle window.
func (m *Manager) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// Create issues a new random token and stores a session for it. The master
// key is moved into an enclave; the caller's buffer is wiped by the move.
func (m *Manager) Create(userID string, masterKey []byte) (string, error) {
	raw := make([]byte, tokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	// NewEnclave seals and wipes the source buffer.
	enclave := memguard.NewEnclave(masterKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[token] = &Session{
		UserID:       userID,
		Key:          enclave,
		LastActivity: m.now(),
	}

	return token, nil
}

// Touch validates the token and refreshes its activity timestamp. An absent
// token fails with ErrInvalidToken; a token idle longer than the window is
// evicted and fails with ErrTokenExpired.
func (m *Manager) Touch(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok {
		return Session{}, model.ErrInvalidToken
	}

	now := m.now()
	if now.Sub(sess.LastActivity) > m.idleTimeout {
		delete(m.sessions, token)
		return Session{}, model.ErrTokenExpired
	}

	sess.LastActivity = now
	return *sess, nil
}

// Destroy removes the session unconditionally. Idempotent.
func (m *Manager) Destroy(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// IsUnlocked reports whether any non-expired session exists for the user.
// Status reporting only, never authorization. Expired sessions encountered
// during the scan are evicted.
func (m *Manager) IsUnlocked(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	unlocked := false
	for token, sess := range m.sessions {
		if now.Sub(sess.LastActivity) > m.idleTimeout {
			delete(m.sessions, token)
			continue
		}
		if sess.UserID == userID {
			unlocked = true
		}
	}

	return unlocked
}

// Drop evicts every session. Called on shutdown.
func (m *Manager) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
}
