package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

func TestKey_Deterministic(t *testing.T) {
	req := &provider.Request{
		Model:       "gpt-4o",
		Prompt:      "hello",
		Temperature: 0.7,
		MaxTokens:   256,
	}
	if Key(req) != Key(req) {
		t.Errorf("Expected identical keys for the same request")
	}
}

func TestKey_IgnoresNonSemanticFields(t *testing.T) {
	base := &provider.Request{Model: "gpt-4o", Prompt: "hello"}
	other := &provider.Request{
		Model:         "gpt-4o",
		Prompt:        "hello",
		Stream:        true,
		CacheDisabled: true,
		CacheTTL:      time.Minute,
		TenantID:      "tenant-1",
		RequestID:     "req-1",
	}
	if Key(base) != Key(other) {
		t.Errorf("Expected stream/cache/tenant fields not to affect the key")
	}
}

func TestKey_SensitiveToParameters(t *testing.T) {
	base := &provider.Request{Model: "gpt-4o", Prompt: "hello", Temperature: 0.2}
	changed := &provider.Request{Model: "gpt-4o", Prompt: "hello", Temperature: 0.3}
	if Key(base) == Key(changed) {
		t.Errorf("Expected different keys when temperature differs")
	}
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	resp := &provider.Response{Text: "cached answer", Model: "gpt-4o"}
	if err := store.Set(ctx, "k1", resp, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := store.Get(ctx, "k1")
	if !ok {
		t.Fatalf("Expected hit for k1")
	}
	if got.Text != "cached answer" {
		t.Errorf("Expected 'cached answer', got %q", got.Text)
	}

	if _, ok := store.Get(ctx, "missing"); ok {
		t.Errorf("Expected miss for unknown key")
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	resp := &provider.Response{Text: "short-lived"}
	if err := store.Set(ctx, "k1", resp, 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := store.Get(ctx, "k1"); ok {
		t.Errorf("Expected expired entry to miss")
	}
	if store.Size(ctx) != 0 {
		t.Errorf("Expected expired entry to be removed, size=%d", store.Size(ctx))
	}
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3, time.Hour)

	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := store.Set(ctx, key, &provider.Response{Text: key}, 0); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}

	// Touch k1 so k2 becomes the least recently used.
	if _, ok := store.Get(ctx, "k1"); !ok {
		t.Fatalf("Expected hit for k1")
	}

	if err := store.Set(ctx, "k4", &provider.Response{Text: "k4"}, 0); err != nil {
		t.Fatalf("Set k4 failed: %v", err)
	}

	if store.Size(ctx) != 3 {
		t.Errorf("Expected size 3 after eviction, got %d", store.Size(ctx))
	}
	if _, ok := store.Get(ctx, "k2"); ok {
		t.Errorf("Expected k2 to be evicted")
	}
	if _, ok := store.Get(ctx, "k1"); !ok {
		t.Errorf("Expected k1 to survive eviction")
	}
	if _, ok := store.Get(ctx, "k4"); !ok {
		t.Errorf("Expected k4 to be present")
	}
}

func TestMemoryStore_ReplaceDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, time.Hour)

	store.Set(ctx, "k1", &provider.Response{Text: "a"}, 0)
	store.Set(ctx, "k2", &provider.Response{Text: "b"}, 0)
	store.Set(ctx, "k1", &provider.Response{Text: "a2"}, 0)

	if store.Size(ctx) != 2 {
		t.Errorf("Expected size 2 after replace, got %d", store.Size(ctx))
	}
	got, ok := store.Get(ctx, "k1")
	if !ok || got.Text != "a2" {
		t.Errorf("Expected replaced value 'a2', got %v ok=%v", got, ok)
	}
	if m := store.Metrics(); m.Evictions != 0 {
		t.Errorf("Expected no evictions on replace, got %d", m.Evictions)
	}
}

func TestMemoryStore_Metrics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	store.Set(ctx, "k1", &provider.Response{Text: "a"}, 0)
	store.Get(ctx, "k1")
	store.Get(ctx, "k1")
	store.Get(ctx, "missing")

	m := store.Metrics()
	if m.Hits != 2 {
		t.Errorf("Expected 2 hits, got %d", m.Hits)
	}
	if m.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", m.Misses)
	}
	if m.Size != 1 {
		t.Errorf("Expected size 1, got %d", m.Size)
	}
}

func TestFileStore_SurvivesMemoryLoss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	resp := &provider.Response{Text: "durable", Model: "claude-sonnet-4"}
	if err := store.Set(ctx, "k1", resp, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh store over the same dir simulates a process restart.
	reopened, err := NewFileStore(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore (reopen) failed: %v", err)
	}

	got, ok := reopened.Get(ctx, "k1")
	if !ok {
		t.Fatalf("Expected file-backed hit after restart")
	}
	if got.Text != "durable" {
		t.Errorf("Expected 'durable', got %q", got.Text)
	}

	// The file hit promotes the entry back into memory.
	if reopened.Size(ctx) != 1 {
		t.Errorf("Expected entry promoted to memory, size=%d", reopened.Size(ctx))
	}

	m := reopened.Metrics()
	if m.Hits != 1 || m.Misses != 0 {
		t.Errorf("Expected file hit counted as hit (hits=%d misses=%d)", m.Hits, m.Misses)
	}
}

func TestFileStore_ExpiredFileIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.Set(ctx, "k1", &provider.Response{Text: "x"}, 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	reopened, err := NewFileStore(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore (reopen) failed: %v", err)
	}
	if _, ok := reopened.Get(ctx, "k1"); ok {
		t.Errorf("Expected expired file entry to miss")
	}
}

func TestFileStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	store.Set(ctx, "k1", &provider.Response{Text: "a"}, time.Hour)
	store.Set(ctx, "k2", &provider.Response{Text: "b"}, time.Hour)

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	reopened, _ := NewFileStore(dir, 10, time.Hour)
	if _, ok := reopened.Get(ctx, "k1"); ok {
		t.Errorf("Expected k1 gone after delete")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	reopened2, _ := NewFileStore(dir, 10, time.Hour)
	if _, ok := reopened2.Get(ctx, "k2"); ok {
		t.Errorf("Expected k2 gone after clear")
	}
}
