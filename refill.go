// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"math"
	"sync/atomic"
	"time"
)

// RateConfig configures a constant refill rate: Quantity tokens are added once every Interval, and
// the bucket never holds more than Max tokens.
type RateConfig struct {
	Quantity uint64
	Interval time.Duration
	Max      uint64
}

// rateRefill credits Quantity tokens at every Interval boundary since the bucket's origin. All
// arithmetic is done on integer nanoseconds of elapsed time.
type rateRefill struct {
	quantity uint64
	interval int64
	max      uint64

	// Elapsed nanoseconds at which the next refill boundary falls.
	due atomic.Int64
}

func newRateRefill(quantity uint64, interval time.Duration, max uint64) *rateRefill {
	r := &rateRefill{
		quantity: quantity,
		interval: int64(interval),
		max:      max}
	r.due.Store(int64(interval))
	return r
}

// refill credits every boundary that elapsed has reached. The due marker is advanced with a
// compare-and-swap, and only the goroutine that wins the swap credits the tokens, so a boundary is
// never credited twice.
func (r *rateRefill) refill(elapsed time.Duration, tokens *atomic.Uint64) {
	now := int64(elapsed)

	for {
		due := r.due.Load()
		if now < due {
			return
		}

		// 1 for the boundary at due, then 1 for every whole interval since
		intervals := 1 + (now-due)/r.interval
		if r.due.CompareAndSwap(due, due+intervals*r.interval) {
			r.credit(r.amount(uint64(intervals)), tokens)
			return
		}
	}
}

// amount is intervals*quantity, saturating at max.
func (r *rateRefill) amount(intervals uint64) uint64 {
	if intervals > r.max/r.quantity {
		return r.max
	}

	return intervals * r.quantity
}

// credit adds amount to tokens without ever storing a value above max.
func (r *rateRefill) credit(amount uint64, tokens *atomic.Uint64) {
	for {
		available := tokens.Load()
		if available >= r.max {
			return
		}

		next := r.max
		if amount < r.max-available {
			next = available + amount
		}

		if tokens.CompareAndSwap(available, next) {
			return
		}
	}
}

// waitFor estimates when requested tokens will be available, as a duration since the bucket's
// origin: the next boundary, plus one interval per whole quantity of the shortfall. Intervals are
// rounded down, so a shortfall that is an exact multiple of quantity is estimated one interval
// late. Estimates beyond the range of time.Duration saturate at its maximum.
func (r *rateRefill) waitFor(available, requested uint64) time.Duration {
	if requested <= available {
		return 0
	}

	due := r.due.Load()
	intervals := (requested - available) / r.quantity
	if intervals > uint64((math.MaxInt64-due)/r.interval) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(due + int64(intervals)*r.interval)
}
