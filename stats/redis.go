// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package stats

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/redis.v5"

	"github.com/square/permitbucket/events"
	"github.com/square/permitbucket/logging"
)

type redisListener struct {
	client *redis.Client
	prefix string
}

// NewRedisStatsListener creates a redis-backed stats listener with the passed in redis.Options.
// Scores are kept under keys starting with prefix, and expire at the end of every hour.
func NewRedisStatsListener(redisOpts *redis.Options, prefix string) (Listener, error) {
	client := redis.NewClient(redisOpts)
	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "cannot connect to Redis")
	}

	return &redisListener{client, prefix}, nil
}

func (l *redisListener) redisTopList(key string) []*BucketScore {
	results, err := l.client.ZRevRangeWithScores(key, 0, 9).Result()

	if err != nil && err != redis.Nil {
		logging.Warnf("RedisStatsListener.TopList error (%s) %v", key, err)
		return emptyArr
	}

	arr := make([]*BucketScore, len(results))

	for i, item := range results {
		arr[i] = &BucketScore{item.Member.(string), int64(item.Score)}
	}

	return arr
}

func (l *redisListener) statsKey(key string) string {
	return fmt.Sprintf("stats:%s:%s", l.prefix, key)
}

// TopHits returns a sorted list of the 10 buckets with the highest # of hits within the current
// bucketed hour
func (l *redisListener) TopHits() []*BucketScore {
	return l.redisTopList(l.statsKey("hits"))
}

// TopMisses returns a sorted list of the 10 buckets with the highest # of misses within the
// current bucketed hour
func (l *redisListener) TopMisses() []*BucketScore {
	return l.redisTopList(l.statsKey("misses"))
}

// Get returns the hits and misses for a bucket within the current bucketed hour
func (l *redisListener) Get(bucket string) *BucketScores {
	scores := &BucketScores{}

	value, err := l.client.ZScore(l.statsKey("misses"), bucket).Result()
	if err != nil && err != redis.Nil {
		logging.Warnf("RedisStatsListener.Get error (%s) %v", bucket, err)
	} else {
		scores.Misses = int64(value)
	}

	value, err = l.client.ZScore(l.statsKey("hits"), bucket).Result()
	if err != nil && err != redis.Nil {
		logging.Warnf("RedisStatsListener.Get error (%s) %v", bucket, err)
	} else {
		scores.Hits = int64(value)
	}

	return scores
}

func nearestHour() time.Time {
	return time.Now().Add(time.Hour).Truncate(time.Hour)
}

// HandleEvent consumes dynamic bucket events (see events.Event)
func (l *redisListener) HandleEvent(event events.Event) {
	hit, amount, ok := classify(event)
	if !ok {
		return
	}

	key := l.statsKey("misses")
	if hit {
		key = l.statsKey("hits")
	}

	bucket := event.BucketName()

	var incr *redis.FloatCmd
	_, err := l.client.Pipelined(func(pipe *redis.Pipeline) error {
		incr = pipe.ZIncrBy(key, float64(amount), bucket)
		pipe.ExpireAt(key, nearestHour())
		return nil
	})

	if err != nil || incr.Err() != nil {
		logging.Warnf("RedisStatsListener.HandleEvent error (%s, %s, %d) %v, %v",
			key, bucket, amount, err, incr.Err())
	}
}
