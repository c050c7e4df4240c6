// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import "time"

// Builder accumulates bucket settings. Setters may be called in any order; Build validates them.
type Builder struct {
	quantity  uint64
	interval  time.Duration
	hasRefill bool

	max    uint64
	hasMax bool

	threshold    uint64
	hasThreshold bool

	initial    uint64
	hasInitial bool

	clock     Clock
	onConsume func(uint64)
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Rate sets the refill rate and, if cfg.Max is non-zero, the capacity.
func (b *Builder) Rate(cfg RateConfig) *Builder {
	b.RefillRate(cfg.Quantity, cfg.Interval)
	if cfg.Max > 0 {
		b.Max(cfg.Max)
	}
	return b
}

// RefillRate adds quantity tokens every interval.
func (b *Builder) RefillRate(quantity uint64, interval time.Duration) *Builder {
	b.quantity = quantity
	b.interval = interval
	b.hasRefill = true
	return b
}

// Max sets the bucket's capacity.
func (b *Builder) Max(max uint64) *Builder {
	b.max = max
	b.hasMax = true
	return b
}

// Threshold makes the bucket grant permits only while at least threshold tokens are available.
func (b *Builder) Threshold(threshold uint64) *Builder {
	b.threshold = threshold
	b.hasThreshold = true
	return b
}

// Initial sets the number of tokens the bucket starts with. By default a bucket starts with its
// threshold plus one refill's worth of tokens, capped at its capacity.
func (b *Builder) Initial(initial uint64) *Builder {
	b.initial = initial
	b.hasInitial = true
	return b
}

// Clock overrides the time source.
func (b *Builder) Clock(c Clock) *Builder {
	b.clock = c
	return b
}

// OnConsume installs a hook that every permit from the bucket calls, with the number of tokens
// requested, once the permit has been accepted and just before tokens are deducted. The hook runs
// on the caller's goroutine and must not block.
func (b *Builder) OnConsume(f func(uint64)) *Builder {
	b.onConsume = f
	return b
}

// Build returns a new bucket, or a *BuildError naming the first missing or invalid setting.
func (b *Builder) Build() (*Bucket, error) {
	if !b.hasRefill {
		return nil, missingField(FieldRefill)
	}

	if !b.hasMax {
		return nil, missingField(FieldMax)
	}

	if b.quantity == 0 {
		return nil, invalidField(FieldRefill, "quantity must be greater than 0")
	}

	if b.interval <= 0 {
		return nil, invalidField(FieldRefill, "interval must be greater than 0")
	}

	if b.max == 0 {
		return nil, invalidField(FieldMax, "max must be greater than 0")
	}

	if b.threshold > b.max {
		return nil, invalidField(FieldThreshold, "threshold cannot exceed max")
	}

	if b.hasInitial && b.initial > b.max {
		return nil, invalidField(FieldInitial, "initial cannot exceed max")
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock
	}

	initial := b.initial
	if !b.hasInitial {
		initial = b.max
		if b.quantity < b.max-b.threshold {
			initial = b.threshold + b.quantity
		}
	}

	store := newTokenStore(newRateRefill(b.quantity, b.interval, b.max), initial, b.threshold, clock)
	p := &permitter{kind: alwaysPermit, store: store, onConsume: b.onConsume}
	if b.hasThreshold {
		p.kind = thresholdPermit
		p.threshold = b.threshold
	}

	return &Bucket{store: store, permitter: p}, nil
}
