package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

type memEntry struct {
	entry  Entry
	access uint64
}

// MemoryStore is a capacity-bounded in-memory store. Eviction removes the
// entry with the smallest access counter; the counter increases
// monotonically on every read and write.
type MemoryStore struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	counter    uint64
	entries    map[string]*memEntry

	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryStore creates a MemoryStore holding at most maxSize entries.
// defaultTTL applies when Set is called with a zero TTL.
func NewMemoryStore(maxSize int, defaultTTL time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryStore{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*memEntry, maxSize),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*provider.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if e.entry.Expired(time.Now()) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}

	e.entry.HitCount++
	s.counter++
	e.access = s.counter
	s.hits++
	return e.entry.Value, true
}

func (s *MemoryStore) Set(_ context.Context, key string, value *provider.Response, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replacing an existing key resets its access order without eviction.
	if e, ok := s.entries[key]; ok {
		s.counter++
		*e = memEntry{
			entry:  Entry{Value: value, CreatedAt: time.Now(), TTL: ttl},
			access: s.counter,
		}
		return nil
	}

	// Evict before inserting so the store never exceeds its bound.
	if len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.counter++
	s.entries[key] = &memEntry{
		entry:  Entry{Value: value, CreatedAt: time.Now(), TTL: ttl},
		access: s.counter,
	}
	return nil
}

// evictOldest removes the entry with the smallest access counter.
// Caller holds s.mu.
func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldest uint64
	first := true
	for k, e := range s.entries {
		if first || e.access < oldest {
			oldestKey = k
			oldest = e.access
			first = false
		}
	}
	if !first {
		delete(s.entries, oldestKey)
		s.evictions++
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*memEntry, s.maxSize)
	return nil
}

func (s *MemoryStore) Size(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Metrics{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Size:      int64(len(s.entries)),
	}
}
