package cache

import (
	"strings"
	"sync"
	"time"

	"wallet-activity/internal/activity"
)

// DefaultTTL is how long a classified history stays fresh.
const DefaultTTL = 30 * time.Second

// Entry is one cached result set. Entries are replaced whole, never patched.
type Entry struct {
	Records    []activity.ClassifiedTransaction
	CapturedAt time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store memoises classified histories by lowercased address. Expired entries
// are ignored on read and overwritten on the next Put; nothing is evicted.
type Store struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]Entry
}

// New builds a Store. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key normalises an address into a cache key.
func Key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Get returns a copy of the cached records for key when the entry is still fresh.
func (s *Store) Get(key string) ([]activity.ClassifiedTransaction, bool) {
	s.mu.RLock()
	entry, ok := s.entries[Key(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.CapturedAt) > s.ttl {
		return nil, false
	}
	return append([]activity.ClassifiedTransaction(nil), entry.Records...), true
}

// Put stores records under key with the current capture time.
func (s *Store) Put(key string, records []activity.ClassifiedTransaction) {
	entry := Entry{
		Records:    append([]activity.ClassifiedTransaction(nil), records...),
		CapturedAt: s.now(),
	}
	s.mu.Lock()
	s.entries[Key(key)] = entry
	s.mu.Unlock()
}

// Len reports how many keys are held, fresh or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TTL reports the configured time-to-live.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
