// Package retry holds the bounded exponential backoff used by every CAS loop.
package retry

import (
	"context" // Request-scoped context
	"fmt"     // Error formatting
	"time"    // Backoff durations

	"banker_api/internal/domain" // Models and error kinds
)

// Policy bounds a CAS retry loop.
type Policy struct {
	MaxRetries  int           `yaml:"max_retries"`  // attempt cap per CAS loop
	BaseBackoff time.Duration `yaml:"base_backoff"` // first delay
	MaxBackoff  time.Duration `yaml:"max_backoff"`  // delay ceiling
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{MaxRetries: 5, BaseBackoff: 10 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}
}

// Attempts returns the number of attempts a loop may make, at least one.
func (p Policy) Attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Backoff returns the delay before attempt n+1, doubling from BaseBackoff
// and capped at MaxBackoff.
func (p Policy) Backoff(n int) time.Duration {
	d := p.BaseBackoff
	for i := 0; i < n && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Wait sleeps for Backoff(n) unless ctx ends first, in which case it
// returns an error matching domain.ErrTimeout.
func (p Policy) Wait(ctx context.Context, n int) error {
	d := p.Backoff(n)
	if d <= 0 {
		return Check(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
	case <-t.C:
		return nil
	}
}

// Check returns a domain.ErrTimeout error when ctx is already done.
func Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return nil
}
