// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"sync"
	"time"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/logging"
)

// watcher watches a reapable namedBucket for activity.
type watcher struct {
	bucket       *namedBucket
	maxIdle      time.Duration
	lastActivity time.Time
	activities   <-chan struct{}
}

// activityDetected tells you if activity has been detected since the last time this method was
// called.
func (w *watcher) activityDetected() bool {
	select {
	case <-w.activities:
		return true
	default:
		return false
	}
}

// tooIdle returns true if a bucket has been idle for longer than its maxIdle
func (w *watcher) tooIdle(now time.Time) bool {
	if w.activityDetected() {
		w.lastActivity = now
		return false
	}
	return now.Sub(w.lastActivity) > w.maxIdle
}

func createWatcher(b *namedBucket, maxIdle time.Duration) *watcher {
	return &watcher{
		bucket:     b,
		maxIdle:    maxIdle,
		activities: b.activities}
}

// reaper removes idle buckets. Watchers are queued by applyWatch, which may be called with the
// container locked, so queuing never blocks on the reaper goroutine.
type reaper struct {
	cfg      config.ReaperConfig
	mu       sync.Mutex
	pending  []*watcher
	wake     chan struct{}
	done     chan struct{}
	watchers map[*namedBucket]*watcher
}

func newReaper(bc *bucketContainer, r config.ReaperConfig) *reaper {
	reaper := &reaper{
		cfg:      r,
		pending:  make([]*watcher, 0, r.BucketWatcherBuffer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		watchers: make(map[*namedBucket]*watcher)}

	go reaper.reapIdleBuckets(bc)

	return reaper
}

func (r *reaper) stop() {
	// This will trigger the reaper goroutine to exit.
	close(r.done)
}

// queueWatcher hands w to the reaper goroutine without blocking.
func (r *reaper) queueWatcher(w *watcher) {
	r.mu.Lock()
	r.pending = append(r.pending, w)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
		// Already woken
	}
}

// addPendingWatchers registers every queued watcher.
func (r *reaper) addPendingWatchers() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make([]*watcher, 0, len(pending))
	r.mu.Unlock()

	now := time.Now()
	for _, w := range pending {
		r.watchers[w.bucket] = w
		w.lastActivity = now
	}
}

// checkExpirations checks all watches registered with the reaper, and destroys idle buckets,
// updating the reaper accordingly. Returns the duration after which it should run again.
func (r *reaper) checkExpirations(bc *bucketContainer) time.Duration {
	now := time.Now()
	newSleep := r.cfg.MinFrequency
	var reaped uint64
	for b, w := range r.watchers {
		if b.destroyed.Load() {
			// Removed by a config change; nothing left to reap.
			delete(r.watchers, b)
		} else if w.tooIdle(now) {
			reaped++
			bc.removeBucket(b)
			delete(r.watchers, b)
		} else if w.maxIdle < newSleep {
			// Check if we're sleeping the right amount.
			newSleep = w.maxIdle
		}
	}

	if reaped > 0 {
		logging.Infof("Reaped %d buckets due to inactivity", reaped)
	}
	return newSleep
}

// reapIdleBuckets watches all buckets for activity, deleting a bucket if no activity has been
// detected after its maxIdle.
func (r *reaper) reapIdleBuckets(bc *bucketContainer) {
	sleep := r.cfg.InitSleep
	logging.Debugf("reapIdleBuckets started. Initial sleep %v", sleep)
	ticker := time.NewTicker(sleep)
	defer func() { ticker.Stop() }()

	// Watch on a ticker, or new watches being queued.
	for {
		select {
		case <-r.done:
			r.watchers = nil
			return

		case <-r.wake:
			r.addPendingWatchers()

		case <-ticker.C:
			r.addPendingWatchers()
			newSleep := r.checkExpirations(bc)

			if newSleep != sleep {
				logging.Debugf("Adjusting ticker to run with duration %v", newSleep)
				ticker.Stop()
				ticker = time.NewTicker(newSleep)
				sleep = newSleep
			}
		}
	}
}

// applyWatch makes a bucket reapable if its config has a maxIdle.
func (r *reaper) applyWatch(b *namedBucket) {
	maxIdle := b.cfg.MaxIdle()
	if maxIdle <= 0 {
		return
	}

	b.activities = make(chan struct{}, 1)
	r.queueWatcher(createWatcher(b, maxIdle))
}
