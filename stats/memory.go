// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"

	"github.com/square/permitbucket/events"
	"github.com/square/permitbucket/logging"
)

const (
	// Wait estimates are recorded in milliseconds, up to an hour.
	maxTrackedWaitMillis = int64(time.Hour / time.Millisecond)
	waitSigFigs          = 3
)

type memoryListener struct {
	sync.RWMutex
	hits, misses map[string]*BucketScore
	waits        map[string]*hdrhistogram.Histogram
}

// NewMemoryStatsListener returns a Listener that keeps scores in memory. It also records the wait
// estimates handed to refused callers, per bucket.
func NewMemoryStatsListener() *memoryListener {
	return &memoryListener{
		hits:   make(map[string]*BucketScore),
		misses: make(map[string]*BucketScore),
		waits:  make(map[string]*hdrhistogram.Histogram)}
}

func (l *memoryListener) bucketScoreTop10(scoreMap map[string]*BucketScore) []*BucketScore {
	l.RLock()
	arr := make(BucketScoreArray, 0, len(scoreMap))
	for _, value := range scoreMap {
		arr = append(arr, &BucketScore{value.Bucket, value.Score})
	}
	l.RUnlock()

	sort.Sort(arr)

	if len(arr) > 10 {
		arr = arr[:10]
	}

	return arr
}

// TopHits returns a sorted list of the 10 dynamic buckets that served the most tokens
func (l *memoryListener) TopHits() []*BucketScore {
	return l.bucketScoreTop10(l.hits)
}

// TopMisses returns a sorted list of the 10 dynamic buckets that refused the most requests
func (l *memoryListener) TopMisses() []*BucketScore {
	return l.bucketScoreTop10(l.misses)
}

// Get returns the hits and misses for a bucket
func (l *memoryListener) Get(bucket string) *BucketScores {
	l.RLock()
	defer l.RUnlock()

	scores := &BucketScores{}

	if hitValue, ok := l.hits[bucket]; ok {
		scores.Hits = hitValue.Score
	}

	if missValue, ok := l.misses[bucket]; ok {
		scores.Misses = missValue.Score
	}

	if p50, ok := l.waitQuantileLocked(bucket, 50); ok {
		scores.WaitP50Millis = int64(p50 / time.Millisecond)
		p99, _ := l.waitQuantileLocked(bucket, 99)
		scores.WaitP99Millis = int64(p99 / time.Millisecond)
	}

	return scores
}

// WaitQuantile returns the wait estimate at quantile q (0 to 100) of those handed out by bucket,
// and false if none were recorded.
func (l *memoryListener) WaitQuantile(bucket string, q float64) (time.Duration, bool) {
	l.RLock()
	defer l.RUnlock()

	return l.waitQuantileLocked(bucket, q)
}

func (l *memoryListener) waitQuantileLocked(bucket string, q float64) (time.Duration, bool) {
	h, ok := l.waits[bucket]
	if !ok || h.TotalCount() == 0 {
		return 0, false
	}

	return time.Duration(h.ValueAtQuantile(q)) * time.Millisecond, true
}

// HandleEvent consumes dynamic bucket events (see events.Event)
func (l *memoryListener) HandleEvent(event events.Event) {
	hit, amount, ok := classify(event)
	if !ok {
		return
	}

	key := event.BucketName()

	l.Lock()
	defer l.Unlock()

	statsBucket := l.misses
	if hit {
		statsBucket = l.hits
	}

	if _, ok := statsBucket[key]; !ok {
		statsBucket[key] = &BucketScore{key, 0}
	}

	statsBucket[key].Score += amount

	if wait := event.WaitTime(); wait > 0 {
		l.recordWait(key, wait)
	}
}

func (l *memoryListener) recordWait(bucket string, wait time.Duration) {
	h, ok := l.waits[bucket]
	if !ok {
		h = hdrhistogram.New(0, maxTrackedWaitMillis, waitSigFigs)
		l.waits[bucket] = h
	}

	millis := int64(wait / time.Millisecond)
	if millis > maxTrackedWaitMillis {
		millis = maxTrackedWaitMillis
	}

	if err := h.RecordValue(millis); err != nil {
		logging.Debugf("Unable to record wait %v for %v: %v", wait, bucket, err)
	}
}
