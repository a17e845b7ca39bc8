package auth

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"hometracker.app/internal/obs"
)

// Hasher runs password derivations on a bounded pool so that a burst of
// logins cannot starve the rest of the process of CPU.
type Hasher struct {
	sem        *semaphore.Weighted
	iterations int
}

// HasherOption configures a Hasher.
type HasherOption func(*Hasher)

// WithIterations overrides the PBKDF2 work factor used for new credentials.
func WithIterations(n int) HasherOption {
	return func(h *Hasher) {
		if n > 0 && n <= maxIterations {
			h.iterations = n
		}
	}
}

// NewHasher returns a Hasher running at most concurrency derivations at once.
// A non-positive concurrency means one per CPU.
func NewHasher(concurrency int, opts ...HasherOption) *Hasher {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	h := &Hasher{
		sem:        semaphore.NewWeighted(int64(concurrency)),
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Iterations returns the work factor written into new credentials.
func (h *Hasher) Iterations() int { return h.iterations }

// Hash derives a new credential for password. The only errors are an empty
// password, entropy failure or ctx ending while waiting for a slot.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	start := time.Now()
	defer func() { obs.ObserveDerivation("hash", time.Since(start)) }()
	return hashPassword(password, h.iterations)
}

// Verify checks password against stored. The error is non-nil only when ctx
// ended before a slot was free; a mismatch or a malformed credential is false.
func (h *Hasher) Verify(ctx context.Context, password, stored string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	start := time.Now()
	defer func() { obs.ObserveDerivation("verify", time.Since(start)) }()
	return VerifyPassword(password, stored), nil
}

// NeedsRehash reports whether stored is weaker than what Hash writes today.
func (h *Hasher) NeedsRehash(stored string) bool {
	return NeedsRehash(stored, h.iterations)
}
