// Package ratelimit bounds the call rate to external trading systems.
//
// The limiter keeps a sliding window of admission timestamps and a FIFO queue
// of blocked callers. A caller is admitted only when fewer than maxRequests
// admissions fall inside the trailing window; everyone else waits in strict
// arrival order.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is shared by all strategies and the orchestrator. Safe for
// concurrent callers.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration

	timestamps []time.Time // admissions inside the current window, oldest first
	waiters    []*waiter   // FIFO queue of blocked callers
	timer      *time.Timer // pending wakeup for the next free slot

	now func() time.Time // injectable clock for tests
}

type waiter struct {
	ready    chan struct{}
	admitted bool
	gone     bool // caller gave up (context cancelled)
}

// New creates a limiter admitting at most maxRequests calls per window.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Acquire blocks until the caller is admitted or ctx is done. Queued callers
// are released strictly in arrival order as window slots free up.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.prune()

	// Fast path: free slot and nobody queued ahead of us.
	if len(l.waiters) == 0 && len(l.timestamps) < l.maxRequests {
		l.timestamps = append(l.timestamps, l.now())
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.scheduleWakeLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		if w.admitted {
			// Lost the race with dispatch; the slot is already consumed,
			// so let the call proceed.
			l.mu.Unlock()
			return nil
		}
		w.gone = true
		l.removeWaiterLocked(w)
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Status is a point-in-time snapshot for the outward status surface.
type Status struct {
	Used        int           `json:"used"`
	MaxRequests int           `json:"max_requests"`
	Queued      int           `json:"queued"`
	Window      time.Duration `json:"window"`
}

// GetStatus reports current window usage and queue depth.
func (l *Limiter) GetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	return Status{
		Used:        len(l.timestamps),
		MaxRequests: l.maxRequests,
		Queued:      len(l.waiters),
		Window:      l.window,
	}
}

// prune drops admissions older than the window. Callers hold l.mu.
func (l *Limiter) prune() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

// dispatch admits as many queued callers as free slots allow, FIFO.
// Callers hold l.mu.
func (l *Limiter) dispatchLocked() {
	l.prune()
	for len(l.waiters) > 0 && len(l.timestamps) < l.maxRequests {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		if w.gone {
			continue
		}
		w.admitted = true
		l.timestamps = append(l.timestamps, l.now())
		close(w.ready)
	}
	l.scheduleWakeLocked()
}

// scheduleWakeLocked arms the timer for the moment the oldest admission
// leaves the window. Callers hold l.mu.
func (l *Limiter) scheduleWakeLocked() {
	if len(l.waiters) == 0 || len(l.timestamps) == 0 {
		return
	}
	wait := l.timestamps[0].Add(l.window).Sub(l.now())
	if wait < 0 {
		wait = 0
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(wait, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.dispatchLocked()
	})
}

func (l *Limiter) removeWaiterLocked(target *waiter) {
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}
