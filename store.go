// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"fmt"
	"sync/atomic"
	"time"
)

// maxAcquireAttempts bounds the compare-and-swap loop in tryAcquire.
const maxAcquireAttempts = 0x10000

// tokenStore is the state shared by every handle cloned from one Bucket. available and the refill
// due marker are the only mutable fields, and both are only ever updated atomically.
type tokenStore struct {
	available atomic.Uint64
	threshold uint64
	origin    time.Time
	clock     Clock
	refill    *rateRefill

	maxAttempts int
}

func newTokenStore(refill *rateRefill, initial, threshold uint64, clock Clock) *tokenStore {
	s := &tokenStore{
		threshold:   threshold,
		origin:      clock.Now(),
		clock:       clock,
		refill:      refill,
		maxAttempts: maxAcquireAttempts}
	s.available.Store(initial)
	return s
}

func (s *tokenStore) max() uint64 {
	return s.refill.max
}

func (s *tokenStore) elapsed() time.Duration {
	return s.clock.Now().Sub(s.origin)
}

// refillNow credits any refill boundaries reached by now.
func (s *tokenStore) refillNow() {
	s.refill.refill(s.elapsed(), &s.available)
}

// tryAcquire refills, then deducts n tokens with a compare-and-swap loop. It fails immediately if
// fewer than n tokens are available, and gives up after maxAttempts lost races.
func (s *tokenStore) tryAcquire(n uint64) (uint64, error) {
	s.refillNow()

	for i := 0; i < s.maxAttempts; i++ {
		available := s.available.Load()
		if available < n {
			return 0, s.notEnoughTokens(available, n)
		}

		if s.available.CompareAndSwap(available, available-n) {
			return n, nil
		}
	}

	// Lost every race; report contention instead of spinning forever.
	return 0, newError(fmt.Sprintf("high contention to update available tokens after %d attempts", s.maxAttempts), ER_HIGH_CONTENTION)
}

func (s *tokenStore) notEnoughTokens(available, requested uint64) *BucketError {
	msg := fmt.Sprintf("not enough tokens available: requested=%d, available=%d", requested, available)
	if requested > s.max() {
		// No amount of waiting will help.
		return newError(msg, ER_NOT_ENOUGH_TOKENS)
	}

	return newWaitError(msg, ER_NOT_ENOUGH_TOKENS, s.refill.waitFor(available, requested))
}
