package export

import (
	"sync"
	"time"
)

// Breaker suspends export attempts after repeated failures. When the
// failure count within the window reaches the threshold, the breaker opens
// and stays open for the configured duration; a success resets the history.
type Breaker struct {
	mu        sync.Mutex
	failures  []time.Time
	threshold int
	window    time.Duration
	openFor   time.Duration
	openUntil time.Time
}

// NewBreaker creates a configured breaker.
func NewBreaker(threshold int, window, openFor time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		window:    window,
		openFor:   openFor,
		failures:  make([]time.Time, 0, threshold),
	}
}

// RecordFailure notes a failed export and opens the breaker once the
// threshold is reached within the window.
func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.threshold {
		b.openUntil = now.Add(b.openFor)
	}
}

// RecordSuccess resets the failure history and closes the breaker.
func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
	b.openUntil = time.Time{}
}

// Open reports whether the breaker is currently rejecting attempts.
func (b *Breaker) Open() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.openUntil)
}
