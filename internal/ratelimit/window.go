// Package ratelimit counts attempts per key in fixed windows and blocks keys
// that exceed their allowance.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Policy allows Limit hits per Window. A key that goes over is refused for
// Block, or until its window ends when Block is zero.
type Policy struct {
	Limit  int
	Window time.Duration
	Block  time.Duration
}

// DefaultAuthPolicy guards credential endpoints.
var DefaultAuthPolicy = Policy{
	Limit:  5,
	Window: 15 * time.Minute,
	Block:  30 * time.Minute,
}

// Validate reports unusable policies.
func (p Policy) Validate() error {
	if p.Limit < 1 {
		return errors.New("ratelimit: limit must be positive")
	}
	if p.Window <= 0 {
		return errors.New("ratelimit: window must be positive")
	}
	if p.Block < 0 {
		return errors.New("ratelimit: block cannot be negative")
	}
	return nil
}

// Decision is the outcome of one hit.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Window records hits for a key and decides whether the hit is allowed.
type Window interface {
	Hit(ctx context.Context, key string) (Decision, error)
}

func denied(p Policy, now time.Time, retry time.Duration) Decision {
	return Decision{
		Allowed:    false,
		Limit:      p.Limit,
		Remaining:  0,
		Reset:      now.Add(retry),
		RetryAfter: retry,
	}
}
