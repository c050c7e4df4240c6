// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"fmt"
	"time"
)

// Bucket is a handle to a token bucket. Handles returned by Clone share the same token state and
// permit strategy. All methods are safe for concurrent use, never block, and never sleep: callers
// that are refused decide for themselves when to retry, using the wait estimate on the error.
type Bucket struct {
	store     *tokenStore
	permitter *permitter
}

// Available returns the number of tokens currently in the bucket. It doesn't credit pending
// refills; those are applied by the next permit check or acquisition.
func (b *Bucket) Available() uint64 {
	return b.store.available.Load()
}

// Max returns the bucket's capacity.
func (b *Bucket) Max() uint64 {
	return b.store.max()
}

// Threshold returns the minimum number of available tokens required to grant a permit. It is 0
// for buckets that always grant permits.
func (b *Bucket) Threshold() uint64 {
	return b.store.threshold
}

// Rate returns the bucket's refill configuration.
func (b *Bucket) Rate() RateConfig {
	r := b.store.refill
	return RateConfig{Quantity: r.quantity, Interval: time.Duration(r.interval), Max: r.max}
}

// Elapsed returns the time since the bucket was built. Wait estimates on errors are measured
// from the same origin, so Wait - Elapsed() is the remaining wait.
func (b *Bucket) Elapsed() time.Duration {
	return b.store.elapsed()
}

// GetPermit returns a permit, or nil if the bucket's permit strategy refuses one.
func (b *Bucket) GetPermit() *Permit {
	p, err := b.permitter.permit()
	if err != nil {
		return nil
	}

	return p
}

// TryPermit returns a permit, or an ER_EXCEEDS_CAPACITY error carrying an estimate of when the
// bucket will be back at its threshold.
func (b *Bucket) TryPermit() (*Permit, error) {
	return b.permitter.permit()
}

// TryAcquireOne is shorthand for TryAcquire(permit, 1).
func (b *Bucket) TryAcquireOne(permit *Permit) error {
	_, err := b.TryAcquire(permit, 1)
	return err
}

// TryAcquire uses up permit and attempts to deduct n tokens, returning n on success. Deduction is
// all-or-nothing. The permit is consumed whatever the outcome and can't be presented again.
func (b *Bucket) TryAcquire(permit *Permit, n uint64) (uint64, error) {
	if permit == nil {
		return 0, newError("nil permit", ER_INVALID_PERMIT)
	}

	if !permit.consume() {
		return 0, newError("permit already used", ER_INVALID_PERMIT)
	}

	if !b.permitter.belongs(permit) {
		return 0, newError("invalid permit", ER_INVALID_PERMIT)
	}

	permit.notify(n)
	return b.store.tryAcquire(n)
}

// Clone returns a new handle sharing this bucket's state.
func (b *Bucket) Clone() *Bucket {
	return &Bucket{store: b.store, permitter: b.permitter}
}

// SameAs reports whether b and other are handles to the same bucket.
func (b *Bucket) SameAs(other *Bucket) bool {
	return other != nil && b.store == other.store
}

func (b *Bucket) String() string {
	r := b.store.refill
	return fmt.Sprintf("Bucket{available: %v, max: %v, threshold: %v, permits: %v, rate: %v/%v}",
		b.Available(), r.max, b.store.threshold, b.permitter.kind, r.quantity, time.Duration(r.interval))
}
