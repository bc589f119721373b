package session

import (
	"context"
	"sync"
	"time"
)

// DefaultCredentialTTL is how long login credentials stay resolvable for
// bearer-token callers.
const DefaultCredentialTTL = 60 * time.Minute

// Credentials are the database URLs a user logged in with.
type Credentials struct {
	IoTDBURL  string    `json:"iot_db_url"`
	UserDBURL string    `json:"user_db_url"`
	At        time.Time `json:"at"`
}

// CredentialStore caches Credentials by user id with a fixed TTL that is
// independent of session timeouts.
type CredentialStore interface {
	// Set stores creds for userID, replacing any previous entry. The At field
	// is assigned by the store.
	Set(ctx context.Context, userID string, creds Credentials)
	// Get returns the credentials if they are younger than the TTL, pruning
	// them otherwise.
	Get(ctx context.Context, userID string) (Credentials, bool)
}

// MemoryCredentialStore is a thread-safe in-memory CredentialStore.
type MemoryCredentialStore struct {
	mu   sync.RWMutex
	data map[string]Credentials
	ttl  time.Duration
	now  func() time.Time
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)

// NewMemoryCredentialStore creates an in-memory credential cache.
func NewMemoryCredentialStore(ttl time.Duration, opts ...Option) *MemoryCredentialStore {
	o := buildOptions(opts)
	return &MemoryCredentialStore{
		data: make(map[string]Credentials),
		ttl:  ttl,
		now:  o.now,
	}
}

func (s *MemoryCredentialStore) Set(_ context.Context, userID string, creds Credentials) {
	creds.At = s.now()
	s.mu.Lock()
	s.data[userID] = creds
	s.mu.Unlock()
}

func (s *MemoryCredentialStore) Get(_ context.Context, userID string) (Credentials, bool) {
	s.mu.RLock()
	creds, ok := s.data[userID]
	s.mu.RUnlock()
	if !ok {
		return Credentials{}, false
	}
	if s.now().Sub(creds.At) >= s.ttl {
		s.mu.Lock()
		// Only prune the entry we judged stale; a concurrent Set may have
		// replaced it.
		if cur, ok := s.data[userID]; ok && cur.At.Equal(creds.At) {
			delete(s.data, userID)
		}
		s.mu.Unlock()
		return Credentials{}, false
	}
	return creds, true
}
