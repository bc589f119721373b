package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store.
// Sessions are lost on server restart.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]Session
	timeouts Timeouts
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(timeouts Timeouts, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		data:     make(map[string]Session),
		timeouts: timeouts,
		now:      o.now,
	}
}

func (s *MemoryStore) Create(_ context.Context, id string, data Data) Session {
	now := s.now()
	session := Session{Data: data, CreatedAt: now, LastActivityAt: now}
	s.mu.Lock()
	s.data[id] = session
	s.mu.Unlock()
	return session
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data[id]
	if !ok {
		return Session{}, false
	}
	now := s.now()
	if s.timeouts.Expired(session, now) {
		delete(s.data, id)
		return Session{}, false
	}
	session.LastActivityAt = now
	s.data[id] = session
	return session, true
}

func (s *MemoryStore) Destroy(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
