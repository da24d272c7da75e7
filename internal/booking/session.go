package booking

import (
	"sync"
	"time"
)

// Session is one chat user's wizard.
type Session struct {
	Wizard    *Wizard
	Business  string
	StartedAt time.Time
	UpdatedAt time.Time
	mu        sync.Mutex
}

// Touch marks the session as active.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = now
}

// IsExpired checks if session has expired.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.UpdatedAt) > timeout
}

// SessionStore manages booking sessions keyed by user id.
type SessionStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionStore creates a new session store.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Get returns the live session of a user, or nil.
func (ss *SessionStore) Get(userID int64) *Session {
	ss.mu.RLock()
	session := ss.sessions[userID]
	ss.mu.RUnlock()
	if session == nil || session.IsExpired(ss.now(), ss.timeout) {
		return nil
	}
	session.Touch(ss.now())
	return session
}

// Start replaces the user's session with a new one for business.
func (ss *SessionStore) Start(userID int64, business string, w *Wizard) *Session {
	now := ss.now()
	session := &Session{Wizard: w, Business: business, StartedAt: now, UpdatedAt: now}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[userID] = session
	return session
}

// Delete removes a session.
func (ss *SessionStore) Delete(userID int64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, userID)
}

// Len returns the number of stored sessions, expired ones included.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Cleanup removes expired sessions.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := ss.now()
	removed := 0
	for userID, session := range ss.sessions {
		if session.IsExpired(now, ss.timeout) {
			delete(ss.sessions, userID)
			removed++
		}
	}
	return removed
}
