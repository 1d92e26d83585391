package sync

import "time"

// Reference backoff constants for stream reconnection.
const (
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff maps a reconnect attempt count to a capped exponential delay.
// The zero value uses the defaults.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// NextDelay returns min(Max, Base * 2^attempt). Deterministic and pure; the
// attempt counter is owned by the caller.
func (b Backoff) NextDelay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if base >= max {
		return max
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
