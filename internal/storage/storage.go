package storage

import (
	"sync"
	"time"

	"github.com/elecnecta/wifiqr/internal/models"
)

type SessionStore struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
	}
}

func (s *SessionStore) Get(sessionID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return session.Clone(), true
}

func (s *SessionStore) Set(sessionID string, session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session.Clone()
}

// Update applies fn to the stored session under the write lock.
// The session is only saved when fn returns nil.
func (s *SessionStore) Update(sessionID string, fn func(*models.Session) error) (*models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, false, nil
	}

	working := session.Clone()
	if err := fn(working); err != nil {
		return session.Clone(), true, err
	}
	s.sessions[sessionID] = working
	return working.Clone(), true, nil
}

// Prune removes sessions untouched for longer than ttl and returns how many were removed
func (s *SessionStore) Prune(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
