// Package retry provides the bounded polling policy used wherever the
// launcher has to wait on another process with no notification channel
// (daemon port discovery, kill-and-wait).
package retry

import (
	"fmt"
	"time"
)

// Policy encapsulates a bounded fixed-interval polling loop.
// It is immutable after construction.
type Policy struct {
	MaxAttempts int           // total attempts before giving up
	Interval    time.Duration // sleep between attempts
}

// DefaultPolicy returns the launcher default (100 attempts, 100ms interval,
// roughly a ten second bound).
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 100, Interval: 100 * time.Millisecond}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(maxAttempts int, interval time.Duration) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if interval > 0 {
		p.Interval = interval
	}
	return p
}

// Bound returns the approximate total wait the policy allows.
func (p Policy) Bound() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Interval
}

// Each invokes fn up to MaxAttempts times, sleeping Interval between
// attempts. fn returning true stops the loop and reports success; exhausting
// the attempts reports false. fn never sees which attempt it is on.
func (p Policy) Each(fn func() bool) bool {
	for i := 0; i < p.MaxAttempts; i++ {
		if fn() {
			return true
		}
		time.Sleep(p.Interval)
	}
	return false
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be >0")
	}
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be >0")
	}
	return nil
}
