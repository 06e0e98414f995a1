// Package backoff holds the capped exponential retry policy shared by the
// Redis connector and the change feed subscriber.
package backoff

import (
	"context"
	"fmt"
	"time"
)

// Policy doubles the wait after every failed attempt, capped at MaxWait.
type Policy struct {
	Initial time.Duration // first wait (ex: 2s)
	MaxWait time.Duration // upper bound for a single wait (ex: 10s)
}

// Validate ensures both durations are usable.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("Initial must be > 0, got %v", p.Initial)
	}
	if p.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", p.MaxWait)
	}
	return nil
}

// Backoff tracks the current wait of one retry loop. Not safe for
// concurrent use; each loop owns its own.
type Backoff struct {
	policy  Policy
	wait    time.Duration
	attempt int
}

// New starts a retry loop at policy.Initial.
func New(policy Policy) *Backoff {
	return &Backoff{policy: policy, wait: policy.Initial}
}

// Attempt returns the number of waits taken since the last Reset.
func (b *Backoff) Attempt() int { return b.attempt }

// Next returns the wait to apply now and grows the following one.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	current := b.wait
	b.wait *= 2
	if b.wait > b.policy.MaxWait {
		b.wait = b.policy.MaxWait
	}
	if current > b.policy.MaxWait {
		current = b.policy.MaxWait
	}
	return current
}

// Reset goes back to the initial wait after a success.
func (b *Backoff) Reset() {
	b.wait = b.policy.Initial
	b.attempt = 0
}

// Sleep waits for d or until ctx is done. It reports whether the full
// wait elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// TimeLeft returns the remaining time before the context deadline.
func TimeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
