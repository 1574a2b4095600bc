package reader

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultEmptyPollBase = 5 * time.Millisecond
	defaultEmptyPollMax  = 250 * time.Millisecond
)

// newEmptyPollBackoff returns the wait between consecutive empty polls:
// base doubling up to max, without jitter and without giving up. A zero
// base polls again immediately.
func newEmptyPollBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	if base < 0 {
		base = 0
	}
	if max < base {
		max = base
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
