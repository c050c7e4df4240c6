// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/events"
	"github.com/square/permitbucket/logging"
)

type notifier interface {
	Emit(e events.Event)
}

// namedBucket is a Bucket registered in a bucketContainer under a name.
type namedBucket struct {
	*Bucket
	name       string
	cfg        *config.BucketConfig
	dynamic    bool
	activities chan struct{}
	destroyed  atomic.Bool
}

// Config returns the configuration the bucket was built from.
func (b *namedBucket) Config() *config.BucketConfig {
	return b.cfg
}

// Dynamic indicates whether a bucket was created from the dynamic bucket template, rather than
// statically defined in configuration.
func (b *namedBucket) Dynamic() bool {
	return b.dynamic
}

// ReportActivity tells the reaper the bucket is in use. This method doesn't block.
func (b *namedBucket) ReportActivity() {
	if b.activities == nil {
		return
	}

	select {
	case b.activities <- struct{}{}:
	// reported activity
	default:
		// Already reported
	}
}

// Destroy marks the bucket as no longer reachable from its container.
func (b *namedBucket) Destroy() {
	b.destroyed.Store(true)
}

// BucketFromConfig builds a bucket from a bucket config. A zero threshold yields a bucket that
// always grants permits.
func BucketFromConfig(cfg *config.BucketConfig, clock Clock) (*Bucket, error) {
	builder := NewBuilder().
		RefillRate(cfg.Quantity, cfg.Interval()).
		Max(cfg.Max).
		Clock(clock)

	if cfg.Threshold > 0 {
		builder.Threshold(cfg.Threshold)
	}

	if cfg.Initial != nil {
		builder.Initial(*cfg.Initial)
	}

	return builder.Build()
}

// bucketContainer holds the named buckets built from a ServiceConfig.
type bucketContainer struct {
	sync.RWMutex
	cfg           *config.ServiceConfig
	clock         Clock
	n             notifier
	r             *reaper
	buckets       map[string]*namedBucket
	defaultBucket *namedBucket
	stopped       bool
}

// NewBucketContainer creates an empty bucket container and starts its reaper. Call Init to populate
// it.
func NewBucketContainer(n notifier, r config.ReaperConfig, clock Clock) *bucketContainer {
	if clock == nil {
		clock = SystemClock
	}

	bc := &bucketContainer{n: n, clock: clock, buckets: make(map[string]*namedBucket)}
	bc.r = newReaper(bc, r)
	return bc
}

// Init populates the container from cfg, replacing whatever it held.
func (bc *bucketContainer) Init(cfg *config.ServiceConfig) {
	bc.Lock()
	defer bc.Unlock()

	bc.destroyAllLocked()
	bc.initLocked(cfg)
}

func (bc *bucketContainer) initLocked(cfg *config.ServiceConfig) {
	bc.cfg = cfg

	if cfg.DefaultBucket != nil {
		bc.defaultBucket = bc.newNamedBucket(config.DefaultBucketName, cfg.DefaultBucket, false)
	}

	for _, name := range config.BucketNames(cfg) {
		bc.createBucketLocked(name, cfg.Buckets[name], false)
	}
}

// Stop stops the reaper. The container must not be used afterwards.
func (bc *bucketContainer) Stop() {
	bc.Lock()
	defer bc.Unlock()

	if !bc.stopped {
		bc.stopped = true
		bc.r.stop()
	}
}

func (bc *bucketContainer) newNamedBucket(name string, cfg *config.BucketConfig, dyn bool) *namedBucket {
	b, err := BucketFromConfig(cfg, bc.clock)
	if err != nil {
		logging.Errorf("Unable to build bucket %v from %v: %v", name, cfg, err)
		return nil
	}

	return &namedBucket{Bucket: b, name: name, cfg: cfg, dynamic: dyn}
}

func (bc *bucketContainer) createBucketLocked(name string, cfg *config.BucketConfig, dyn bool) *namedBucket {
	b := bc.newNamedBucket(name, cfg, dyn)
	if b == nil {
		return nil
	}

	if !bc.stopped {
		bc.r.applyWatch(b)
	}

	bc.buckets[name] = b
	bc.n.Emit(events.NewBucketCreatedEvent(name, dyn))
	b.ReportActivity()
	return b
}

// FindBucket locates a bucket by name. An exact match wins, recreating a statically configured
// bucket that was reaped. Otherwise the default bucket is used if configured, or a dynamic bucket
// is created from the template if there is space for it. If all fails, it returns nil, along with
// an ER_TOO_MANY_BUCKETS error if the dynamic bucket limit was the reason.
func (bc *bucketContainer) FindBucket(name string) (*namedBucket, error) {
	bc.RLock()
	b := bc.buckets[name]
	cfg := bc.cfg
	def := bc.defaultBucket
	bc.RUnlock()

	if b != nil {
		b.ReportActivity()
		return b, nil
	}

	if cfg == nil {
		return nil, nil
	}

	_, static := cfg.Buckets[name]
	if !static {
		if def != nil {
			return def, nil
		}

		if cfg.DynamicBucketTemplate == nil {
			return nil, nil
		}
	}

	bc.Lock()
	defer bc.Unlock()

	// Need to check if an instance has been created concurrently, or the config swapped.
	if b = bc.buckets[name]; b != nil {
		b.ReportActivity()
		return b, nil
	}

	if bCfg, ok := bc.cfg.Buckets[name]; ok {
		return bc.createBucketLocked(name, bCfg, false), nil
	}

	if bc.defaultBucket != nil {
		return bc.defaultBucket, nil
	}

	if bc.cfg.DynamicBucketTemplate == nil {
		return nil, nil
	}

	numDynamicBuckets := bc.countDynamicBucketsLocked()
	if bc.cfg.MaxDynamicBuckets > 0 && numDynamicBuckets >= bc.cfg.MaxDynamicBuckets {
		logging.Debugf("Bucket %v numDynamicBuckets=%v maxDynamicBuckets=%v. Not creating more dynamic buckets.",
			name, numDynamicBuckets, bc.cfg.MaxDynamicBuckets)
		return nil, newError("cannot create dynamic bucket "+name, ER_TOO_MANY_BUCKETS)
	}

	return bc.createBucketLocked(name, bc.cfg.DynamicBucketTemplate, true), nil
}

func (bc *bucketContainer) countDynamicBucketsLocked() int {
	c := 0
	for _, b := range bc.buckets {
		if b.Dynamic() {
			c++
		}
	}
	return c
}

// Exists reports whether a bucket by this name is currently held. The default bucket doesn't count.
func (bc *bucketContainer) Exists(name string) bool {
	bc.RLock()
	defer bc.RUnlock()

	_, exists := bc.buckets[name]
	return exists
}

// Buckets returns a snapshot of the held buckets, including the default bucket if there is one.
func (bc *bucketContainer) Buckets() []*namedBucket {
	bc.RLock()
	defer bc.RUnlock()

	all := make([]*namedBucket, 0, len(bc.buckets)+1)
	if bc.defaultBucket != nil {
		all = append(all, bc.defaultBucket)
	}

	for _, b := range bc.buckets {
		all = append(all, b)
	}

	return all
}

// removeBucket removes b if it is still the bucket registered under its name.
func (bc *bucketContainer) removeBucket(b *namedBucket) bool {
	bc.Lock()
	defer bc.Unlock()

	if bc.buckets[b.name] != b {
		return false
	}

	bc.removeBucketLocked(b)
	return true
}

func (bc *bucketContainer) removeBucketLocked(b *namedBucket) {
	delete(bc.buckets, b.name)
	b.Destroy()
	bc.n.Emit(events.NewBucketRemovedEvent(b.name, b.dynamic))
}

func (bc *bucketContainer) destroyAllLocked() {
	for _, b := range bc.buckets {
		bc.removeBucketLocked(b)
	}

	if bc.defaultBucket != nil {
		bc.defaultBucket.Destroy()
		bc.defaultBucket = nil
	}
}

// Update applies a new config, recreating only buckets whose config changed. Recreated buckets
// start afresh, so permits from their predecessors are no longer accepted.
func (bc *bucketContainer) Update(newCfg *config.ServiceConfig) {
	bc.Lock()
	defer bc.Unlock()

	if bc.cfg == nil {
		bc.initLocked(newCfg)
		return
	}

	oldCfg := bc.cfg
	bc.cfg = newCfg

	var currentDefaultCfg *config.BucketConfig
	if bc.defaultBucket != nil {
		currentDefaultCfg = bc.defaultBucket.cfg
	}

	if config.DifferentBucketConfigs(currentDefaultCfg, newCfg.DefaultBucket) {
		if bc.defaultBucket != nil {
			bc.defaultBucket.Destroy()
			bc.defaultBucket = nil
		}

		if newCfg.DefaultBucket != nil {
			bc.defaultBucket = bc.newNamedBucket(config.DefaultBucketName, newCfg.DefaultBucket, false)
		}
	}

	templateChanged := config.DifferentBucketConfigs(oldCfg.DynamicBucketTemplate, newCfg.DynamicBucketTemplate)

	for name, b := range bc.buckets {
		newBucketCfg, static := newCfg.Buckets[name]

		keep := b.dynamic && !static && !templateChanged ||
			!b.dynamic && static && !config.DifferentBucketConfigs(b.cfg, newBucketCfg)

		if !keep {
			bc.removeBucketLocked(b)
		}
	}

	for _, name := range config.BucketNames(newCfg) {
		if _, exists := bc.buckets[name]; !exists {
			bc.createBucketLocked(name, newCfg.Buckets[name], false)
		}
	}
}

func (bc *bucketContainer) String() string {
	bc.RLock()
	defer bc.RUnlock()

	var buffer bytes.Buffer
	if bc.defaultBucket != nil {
		buffer.WriteString("Default present\n")
	}

	names := make([]string, 0, len(bc.buckets))
	for name := range bc.buckets {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		b := bc.buckets[name]
		buffer.WriteString(fmt.Sprintf(" + %v (dynamic: %v) %v\n", name, b.dynamic, b.Bucket))
	}

	return buffer.String()
}
