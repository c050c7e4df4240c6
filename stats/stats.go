// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package stats keeps hit and miss counts for dynamic buckets.
package stats

import (
	"fmt"

	"github.com/square/permitbucket/events"
)

// Listener is an interface for consuming
// and retrieving dynamic bucket hits and misses
type Listener interface {
	TopHits() []*BucketScore
	TopMisses() []*BucketScore
	Get(string) *BucketScores
	HandleEvent(events.Event)
}

// BucketScores stores a specific bucket's
// stats on hits and misses. Listeners that keep wait histograms also report the median and 99th
// percentile of the wait estimates handed out with misses.
type BucketScores struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	WaitP50Millis int64 `json:"wait_p50_millis,omitempty"`
	WaitP99Millis int64 `json:"wait_p99_millis,omitempty"`
}

// BucketScore stores a specific bucket's
// stats. Used for top-lists.
type BucketScore struct {
	Bucket string `json:"bucket"`
	Score  int64  `json:"value"`
}

var emptyArr = make([]*BucketScore, 0)

func (b *BucketScore) String() string {
	return fmt.Sprintf("{%s, %d}", b.Bucket, b.Score)
}

// BucketScoreArray implements a sortable BucketScore array
type BucketScoreArray []*BucketScore

func (b BucketScoreArray) Len() int {
	return len(b)
}

func (b BucketScoreArray) Less(i, j int) bool {
	if b[i].Score == b[j].Score {
		return b[i].Bucket < b[j].Bucket
	}

	return b[i].Score > b[j].Score
}

func (b BucketScoreArray) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

// classify maps an event to the score it counts towards, and by how much. Served tokens are hits;
// every refused admission is a miss.
func classify(event events.Event) (hit bool, amount int64, ok bool) {
	if !event.Dynamic() {
		return false, 0, false
	}

	switch event.EventType() {
	case events.EVENT_TOKENS_SERVED:
		return true, int64(event.NumTokens()), true
	case events.EVENT_BUCKET_MISS, events.EVENT_NOT_ENOUGH_TOKENS, events.EVENT_PERMIT_DENIED:
		return false, 1, true
	default:
		return false, 0, false
	}
}
