package csrf

import (
	"sync"
	"time"
)

// Record is an issued token.
type Record struct {
	Token     string
	UserID    string // customer id, or AnonymousUser
	ExpiresAt time.Time
	Used      bool
}

// Store keeps issued tokens. Implementations must be safe for concurrent use.
type Store interface {
	Get(token string) (Record, bool)
	Set(rec Record)
	Delete(token string)
	// MarkUsed flags the token as consumed and reports whether this call did
	// it. It returns false when the token is gone or was already used.
	MarkUsed(token string) bool
	// Sweep deletes records that expired before now and returns the count.
	Sweep(now time.Time) int
}

// MemoryStore is the in-process Store. Tokens do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(token string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[token]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (s *MemoryStore) Set(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Token] = &rec
}

func (s *MemoryStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
}

func (s *MemoryStore) MarkUsed(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[token]
	if !ok || rec.Used {
		return false
	}
	rec.Used = true
	return true
}

func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored tokens.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
