package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWait_AdmitsUpToLimit(t *testing.T) {
	w := NewWindow(3, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected first %d admissions to be immediate, took %v", 3, elapsed)
	}
	if w.Pending() != 3 {
		t.Errorf("Expected 3 pending admissions, got %d", w.Pending())
	}
}

func TestWait_BlocksOverLimit(t *testing.T) {
	w := NewWindow(2, 150*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}

	start := time.Now()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait over limit failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected third admission to wait for the window, took %v", elapsed)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	w := NewWindow(1, time.Minute)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if w.Pending() != 1 {
		t.Errorf("Expected cancelled wait not to record an admission, pending=%d", w.Pending())
	}
}

func TestWait_ConcurrentNeverExceedsLimit(t *testing.T) {
	const limit = 5
	w := NewWindow(limit, 100*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Wait(ctx); err != nil {
				t.Errorf("Wait failed: %v", err)
			}
			if p := w.Pending(); p > limit {
				t.Errorf("Window exceeded limit: pending=%d", p)
			}
		}()
	}
	wg.Wait()
}
