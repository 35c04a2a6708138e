// Package retry provides the capped exponential backoff used by the
// bundle cache's metadata load path.
package retry

import "time"

// Backoff produces a capped exponential delay sequence. It is not safe
// for concurrent use; each load attempt owns its own Backoff.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// NewBackoff creates a backoff starting at initial and doubling up to max.
//
// Parameters:
//   - initial: First delay (values <= 0 fall back to 100ms)
//   - max: Delay ceiling (values < initial fall back to initial)
//
// Returns:
//   - *Backoff: Backoff positioned at the first delay
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max < initial {
		max = initial
	}

	return &Backoff{initial: initial, max: max, next: initial}
}

// Next returns the current delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}

	return d
}

// Reset rewinds the sequence to the initial delay.
func (b *Backoff) Reset() {
	b.next = b.initial
}
