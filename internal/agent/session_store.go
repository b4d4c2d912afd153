package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/gaia/internal/domain"
)

// SessionStore keeps the message history of every session, keyed by the
// client-chosen session id.
type SessionStore interface {
	// GetOrCreate returns the session with the given id. When it does not
	// exist it is created holding seed, and created is true.
	GetOrCreate(id, persona string, seed []domain.Message) (sess *domain.Session, created bool, err error)

	// Get returns a copy of a session, or nil if not found.
	Get(id string) *domain.Session

	// Append adds messages to the end of a session's history.
	Append(id string, msgs ...domain.Message) error

	// History returns a copy of the session's messages.
	History(id string) []domain.Message

	// Reset removes the session. Resetting an unknown id is not an error.
	Reset(id string) error

	// List returns all session ids, most recently updated first.
	List() []string
}

// MemorySessionStore is an in-memory SessionStore. Its contents are lost on
// restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *MemorySessionStore) GetOrCreate(id, persona string, seed []domain.Message) (*domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return copySession(sess), false, nil
	}

	now := time.Now()
	sess := &domain.Session{
		ID:        id,
		Persona:   persona,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  append([]domain.Message(nil), seed...),
	}
	s.sessions[id] = sess
	return copySession(sess), true, nil
}

func (s *MemorySessionStore) Get(id string) *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return copySession(sess)
}

func (s *MemorySessionStore) Append(id string, msgs ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return &SessionNotFoundError{ID: id}
	}
	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) History(id string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), sess.Messages...)
}

func (s *MemorySessionStore) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	ids := make([]string, len(all))
	for i, sess := range all {
		ids[i] = sess.ID
	}
	return ids
}

// SessionNotFoundError is returned when appending to an unknown session.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return "session not found: " + e.ID
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	cp.Messages = append([]domain.Message(nil), s.Messages...)
	return &cp
}
