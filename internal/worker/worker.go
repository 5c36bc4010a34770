// Package worker drains usage logs to the billing store off the request
// path so a slow database never delays responses.
package worker

import (
	"context"
	"log"

	"github.com/vnmchuo/llm-exec/internal/billing"
)

// UsageWorker consumes usage logs from a bounded queue and writes them to
// the billing store. When the queue is full the log is dropped rather than
// blocking the request path.
type UsageWorker struct {
	store billing.Store
	queue chan *billing.UsageLog
	done  chan struct{}
}

// New creates a UsageWorker with the given queue depth.
func New(store billing.Store, depth int) *UsageWorker {
	if depth <= 0 {
		depth = 256
	}
	return &UsageWorker{
		store: store,
		queue: make(chan *billing.UsageLog, depth),
		done:  make(chan struct{}),
	}
}

// Enqueue submits a usage log for asynchronous persistence.
func (w *UsageWorker) Enqueue(l *billing.UsageLog) {
	select {
	case w.queue <- l:
	default:
		log.Printf("worker: usage queue full, dropping log for request %s", l.RequestID)
	}
}

// Run processes the queue until ctx is cancelled, then drains what remains.
func (w *UsageWorker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case l := <-w.queue:
			w.write(l)
		case <-ctx.Done():
			for {
				select {
				case l := <-w.queue:
					w.write(l)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *UsageWorker) Wait() {
	<-w.done
}

func (w *UsageWorker) write(l *billing.UsageLog) {
	if err := w.store.LogUsage(context.Background(), l); err != nil {
		log.Printf("worker: failed to persist usage log: %v", err)
	}
}
