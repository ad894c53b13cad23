package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/BotWeave/BotWeave/internal/models"
)

// InMemoryStore is a mutex-guarded in-process store, used in tests and for
// ephemeral runs. Sessions are deep-copied on every read and write so a
// caller mutating its copy never leaks half a transition into the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session // keyed by session id
	triggers []models.Trigger
	flows    map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		flows:    make(map[string][]byte),
	}
}

func copySession(s *models.Session) *models.Session {
	dup := *s
	dup.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		dup.Context[k] = v
	}
	dup.History = make([]models.HistoryEntry, len(s.History))
	copy(dup.History, s.History)
	return &dup
}

func (s *InMemoryStore) activeByPhone(phone string) *models.Session {
	for _, sess := range s.sessions {
		if sess.Phone == phone && sess.Status == models.SessionStatusActive {
			return sess
		}
	}
	return nil
}

// FindOrCreateSession returns the active session for phone, creating a
// fresh one when none exists. Ended sessions are kept but never resumed.
func (s *InMemoryStore) FindOrCreateSession(phone string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.activeByPhone(phone); sess != nil {
		return copySession(sess), nil
	}
	sess := models.NewSession(phone)
	s.sessions[sess.ID] = copySession(sess)
	return sess, nil
}

// GetSession returns the active session for phone, or nil when none exists.
func (s *InMemoryStore) GetSession(phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess := s.activeByPhone(phone); sess != nil {
		return copySession(sess), nil
	}
	return nil, nil
}

// SaveSession stores the session state as one atomic replacement.
func (s *InMemoryStore) SaveSession(sess *models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	dup := copySession(sess)
	dup.UpdatedAt = now
	s.sessions[sess.ID] = dup
	return nil
}

// ListIdleSessions returns active sessions whose last interaction is older
// than before.
func (s *InMemoryStore) ListIdleSessions(before time.Time) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*models.Session
	for _, sess := range s.sessions {
		if sess.Status == models.SessionStatusActive && sess.LastInteractedAt.Before(before) {
			stale = append(stale, copySession(sess))
		}
	}
	return stale, nil
}

// ListActiveTriggers returns all active trigger entries.
func (s *InMemoryStore) ListActiveTriggers() ([]models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []models.Trigger
	for _, t := range s.triggers {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

// SaveTrigger appends or replaces a trigger entry by id.
func (s *InMemoryStore) SaveTrigger(t models.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.triggers {
		if s.triggers[i].ID == t.ID {
			s.triggers[i] = t
			return nil
		}
	}
	s.triggers = append(s.triggers, t)
	return nil
}

// SaveFlowVersion registers an immutable flow version document. Saving an
// existing ref again is rejected; versions never change once written.
func (s *InMemoryStore) SaveFlowVersion(ref string, definition []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.flows[ref]; exists {
		return fmt.Errorf("flow version %q already exists", ref)
	}
	dup := make([]byte, len(definition))
	copy(dup, definition)
	s.flows[ref] = dup
	return nil
}

// GetFlowVersion returns the raw definition document for ref.
func (s *InMemoryStore) GetFlowVersion(ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.flows[ref]
	if !ok {
		return nil, fmt.Errorf("flow version %q not found", ref)
	}
	dup := make([]byte, len(raw))
	copy(dup, raw)
	return dup, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
