package session

import (
	"sync"

	"github.com/mcoot/tradegame-bot/internal/model"
)

// Store maps an external user ID to a transient authenticated session.
// Sessions are deliberately not persisted: a restart or scale-out loses
// them all and forces re-login.
type Store interface {
	Get(userID string) (model.Session, bool)
	Set(userID string, sess model.Session)
	Clear(userID string)
	// List returns all live sessions; used for broadcast push targets
	List() []model.Session
}

// MemoryStore is a process-local session store. Writes are last-write-wins
// per user ID.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// Ensure MemoryStore implements the interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
	}
}

// Get returns the session bound to the user ID, if any
func (s *MemoryStore) Get(userID string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Set binds a session to the user ID, replacing any prior binding
func (s *MemoryStore) Set(userID string, sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess
}

// Clear removes the user's session
func (s *MemoryStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// List returns a snapshot of all live sessions
func (s *MemoryStore) List() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}
