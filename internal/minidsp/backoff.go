package minidsp

import (
	"sync"
	"time"
)

// Reconnect backoff bounds for the level stream.
const (
	// initialBackoff is the delay after the first failure.
	initialBackoff = 1 * time.Second

	// maxBackoff caps the delay between attempts.
	maxBackoff = 60 * time.Second

	// backoffMultiplier is the factor by which the delay grows.
	backoffMultiplier = 2.0
)

// backoff produces the reconnect delay sequence. Each Next call returns
// the current delay and doubles it, capped at the maximum; Reset restores
// the floor after a successful connection.
type backoff struct {
	mu       sync.Mutex
	current  time.Duration
	initial  time.Duration
	max      time.Duration
	attempts int
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = initialBackoff
	}
	if max <= 0 {
		max = maxBackoff
	}
	return &backoff{current: initial, initial: initial, max: max}
}

// Next returns the delay to wait before the upcoming attempt and
// advances the sequence.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	b.attempts++

	next := time.Duration(float64(b.current) * backoffMultiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset restores the floor delay. Call after a successful connection.
func (b *backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of Next calls since the last reset.
func (b *backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
