package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

// storedEntry is the on-disk shape: one JSON file per key, named by the
// key's content hash.
type storedEntry struct {
	Key   string `json:"key"`
	Entry Entry  `json:"entry"`
}

// FileStore is a hybrid store. The memory layer is authoritative; every
// write goes through to a file in dir, and a memory miss falls back to the
// file before counting as a miss.
type FileStore struct {
	mem *MemoryStore
	dir string

	mu       sync.Mutex
	fileHits int64
}

// NewFileStore creates a FileStore persisting to dir, creating it if needed.
func NewFileStore(dir string, maxSize int, defaultTTL time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{
		mem: NewMemoryStore(maxSize, defaultTTL),
		dir: dir,
	}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Get(ctx context.Context, key string) (*provider.Response, bool) {
	if v, ok := s.mem.Get(ctx, key); ok {
		return v, true
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, false
	}

	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil || stored.Entry.Value == nil {
		_ = os.Remove(s.path(key))
		return nil, false
	}

	now := time.Now()
	if stored.Entry.Expired(now) {
		_ = os.Remove(s.path(key))
		return nil, false
	}

	// Promote back into memory with the remaining lifetime so the file hit
	// does not extend the TTL.
	remaining := stored.Entry.TTL - now.Sub(stored.Entry.CreatedAt)
	_ = s.mem.Set(ctx, key, stored.Entry.Value, remaining)

	s.mu.Lock()
	s.fileHits++
	s.mu.Unlock()
	return stored.Entry.Value, true
}

func (s *FileStore) Set(ctx context.Context, key string, value *provider.Response, ttl time.Duration) error {
	if err := s.mem.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.mem.defaultTTL
	}

	stored := storedEntry{
		Key:   key,
		Entry: Entry{Value: value, CreatedAt: time.Now(), TTL: ttl},
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	_ = s.mem.Delete(ctx, key)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	_ = s.mem.Clear(ctx)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	return nil
}

func (s *FileStore) Size(ctx context.Context) int {
	return s.mem.Size(ctx)
}

func (s *FileStore) Metrics() Metrics {
	m := s.mem.Metrics()
	s.mu.Lock()
	defer s.mu.Unlock()
	// A memory miss satisfied by the file layer counts as a hit overall.
	m.Hits += s.fileHits
	m.Misses -= s.fileHits
	return m
}
