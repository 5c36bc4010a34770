package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vnmchuo/llm-exec/internal/billing"
)

type mockStore struct {
	mu   sync.Mutex
	logs []*billing.UsageLog
}

func (m *mockStore) LogUsage(ctx context.Context, l *billing.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockStore) GetUsageByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*billing.UsageLog, error) {
	return nil, nil
}

func (m *mockStore) GetTotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	return 0, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func TestWorker_PersistsEnqueuedLogs(t *testing.T) {
	store := &mockStore{}
	w := New(store, 16)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		w.Enqueue(&billing.UsageLog{RequestID: "r", TenantID: "t"})
	}

	deadline := time.After(time.Second)
	for store.count() < 5 {
		select {
		case <-deadline:
			t.Fatalf("Expected 5 logs persisted, got %d", store.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	w.Wait()
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	store := &mockStore{}
	w := New(store, 16)

	// Queue before the worker starts, then cancel immediately: Run must
	// still drain what was enqueued.
	for i := 0; i < 3; i++ {
		w.Enqueue(&billing.UsageLog{RequestID: "r"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go w.Run(ctx)
	w.Wait()

	if store.count() != 3 {
		t.Errorf("Expected 3 logs drained on shutdown, got %d", store.count())
	}
}

func TestWorker_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	store := &mockStore{}
	w := New(store, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			w.Enqueue(&billing.UsageLog{RequestID: "r"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Enqueue blocked on a full queue")
	}
}
