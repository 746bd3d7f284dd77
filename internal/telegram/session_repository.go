package telegram

import (
	"sync"
	"time"

	"shopping-planner/internal/session"
)

// DefaultSessionTTL is how long an idle chat keeps its planning session.
const DefaultSessionTTL = 2 * time.Hour

// ChatSession is the planning session owned by one chat.
type ChatSession struct {
	ChatID    int64
	Session   *session.Session
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRepository keeps one planning session per chat in memory.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[int64]*ChatSession
	factory  func() *session.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionRepository creates a repository that builds sessions with factory.
func NewSessionRepository(factory func() *session.Session, ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRepository{
		sessions: make(map[int64]*ChatSession),
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
	}
}

// GetOrCreate returns the chat's active session, creating one if the chat has
// none or its previous session expired. Every call extends the expiry.
func (sr *SessionRepository) GetOrCreate(chatID int64) *session.Session {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := sr.now()
	cs, ok := sr.sessions[chatID]
	if ok && now.After(cs.ExpiresAt) {
		cs.Session.Close()
		ok = false
	}
	if !ok {
		cs = &ChatSession{
			ChatID:    chatID,
			Session:   sr.factory(),
			CreatedAt: now,
		}
		sr.sessions[chatID] = cs
	}
	cs.ExpiresAt = now.Add(sr.ttl)
	return cs.Session
}

// GetActive returns the chat's session if it has not expired.
func (sr *SessionRepository) GetActive(chatID int64) (*ChatSession, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	cs, ok := sr.sessions[chatID]
	if !ok || sr.now().After(cs.ExpiresAt) {
		return nil, false
	}
	return cs, true
}

// Delete closes and removes a chat's session.
func (sr *SessionRepository) Delete(chatID int64) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if cs, ok := sr.sessions[chatID]; ok {
		cs.Session.Close()
		delete(sr.sessions, chatID)
	}
}

// CleanupExpired closes expired sessions and returns how many were removed.
func (sr *SessionRepository) CleanupExpired() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := sr.now()
	removed := 0
	for id, cs := range sr.sessions {
		if now.After(cs.ExpiresAt) {
			cs.Session.Close()
			delete(sr.sessions, id)
			removed++
		}
	}
	return removed
}

// CloseAll closes every session. Used on shutdown.
func (sr *SessionRepository) CloseAll() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	for id, cs := range sr.sessions {
		cs.Session.Close()
		delete(sr.sessions, id)
	}
}

// Len returns the number of tracked sessions.
func (sr *SessionRepository) Len() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.sessions)
}
