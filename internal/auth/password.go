package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

var (
	// ErrCorruptCredential means a stored hash exists but cannot be parsed.
	ErrCorruptCredential = errors.New("stored credential is corrupt")
	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordTooLong   = errors.New("password exceeds maximum length of 72 bytes")
)

// Hasher hashes and verifies passwords with bcrypt. Concurrent bcrypt work is
// bounded so a burst of logins queues rather than starving other requests.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte
}

// NewHasher builds a hasher. cost is clamped to bcrypt's range; concurrency
// defaults to the number of CPUs.
func NewHasher(cost, concurrency int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	h := &Hasher{cost: cost, slots: semaphore.NewWeighted(int64(concurrency))}
	// Compared against on unknown accounts so those take as long as a real check.
	h.dummy, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer"), cost)
	return h
}

// Cost returns the effective work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of secret.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", ErrPasswordRequired
	}
	if len(secret) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches stored. An empty stored value never
// matches; an unparseable one yields ErrCorruptCredential.
func (h *Hasher) Verify(ctx context.Context, secret, stored string) (bool, error) {
	if stored == "" {
		return false, nil
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}
}

// Burn spends one comparison worth of CPU without checking anything.
func (h *Hasher) Burn(ctx context.Context, secret string) {
	if len(h.dummy) == 0 {
		return
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return
	}
	defer h.slots.Release(1)
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
}
