// Package ratelimit implements the per-adapter sliding-window admission
// gate for outbound provider calls. The tenant-level Redis limiter for the
// HTTP surface lives in pkg/ratelimit.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window admits at most limit calls in any trailing window. Each provider
// adapter owns its own Window so one provider's throttling never blocks
// another's traffic.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewWindow creates a Window admitting limit calls per window duration.
func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{limit: limit, window: window}
}

// Wait blocks until an admission slot is free, then records the admission.
// Returns the context error if cancelled while waiting. The delay is
// re-validated after every wake: another caller may have taken the slot.
func (w *Window) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		w.prune(now)
		if len(w.stamps) < w.limit {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}
		delay := w.stamps[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pending returns the number of admissions inside the current window.
func (w *Window) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(time.Now())
	return len(w.stamps)
}

// prune drops timestamps older than the window. Caller holds w.mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
