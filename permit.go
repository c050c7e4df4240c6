// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"fmt"
	"sync/atomic"
	"weak"
)

// Permit is a single-use capability to attempt one acquisition on the bucket that granted it. It
// holds no tokens, reserves nothing, and references its bucket weakly: a permit never keeps a
// bucket's state alive, and a permit whose bucket has been collected is invalid.
type Permit struct {
	store     weak.Pointer[tokenStore]
	used      atomic.Bool
	onConsume func(uint64)
}

// consume marks the permit used, returning false if it already was.
func (p *Permit) consume() bool {
	return p.used.CompareAndSwap(false, true)
}

// Used reports whether the permit has been presented to a bucket.
func (p *Permit) Used() bool {
	return p.used.Load()
}

func (p *Permit) notify(n uint64) {
	if p.onConsume != nil {
		p.onConsume(n)
	}
}

type permitKind int

const (
	alwaysPermit permitKind = iota
	thresholdPermit
)

func (k permitKind) String() string {
	switch k {
	case alwaysPermit:
		return "always"
	case thresholdPermit:
		return "threshold"
	default:
		return "unknown"
	}
}

// permitter decides whether to grant permits for one token store.
type permitter struct {
	kind      permitKind
	threshold uint64
	store     *tokenStore
	onConsume func(uint64)
}

func (p *permitter) newPermit() *Permit {
	return &Permit{store: weak.Make(p.store), onConsume: p.onConsume}
}

// permit grants a permit, or explains why it can't. The threshold check is a point-in-time read:
// nothing is reserved, so the balance may drop below the threshold before the permit is used.
func (p *permitter) permit() (*Permit, error) {
	switch p.kind {
	case alwaysPermit:
		return p.newPermit(), nil
	case thresholdPermit:
		// Catch up on refills first; otherwise a bucket below its threshold could never grant
		// the permit needed to trigger one.
		p.store.refillNow()
		available := p.store.available.Load()
		if available < p.threshold {
			return nil, newWaitError(
				fmt.Sprintf("available tokens below threshold: available=%d, threshold=%d", available, p.threshold),
				ER_EXCEEDS_CAPACITY,
				p.store.refill.waitFor(available, p.threshold))
		}
		return p.newPermit(), nil
	default:
		panic(fmt.Sprintf("unknown permit kind %v", p.kind))
	}
}

// belongs reports whether permit was granted for this exact token store. Identity, not
// configuration, is compared: two identically configured buckets never accept each other's
// permits.
func (p *permitter) belongs(permit *Permit) bool {
	return permit.store.Value() == p.store
}
