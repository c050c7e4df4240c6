// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package main

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codahale/hdrhistogram"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/square/permitbucket"
	"github.com/square/permitbucket/logging"
)

const maxSleepMicros = int64(time.Minute / time.Microsecond)

type simulationResult struct {
	served, denied, short, contended, sleeps atomic.Int64
	mu                                       sync.Mutex
	sleepMicros                              *hdrhistogram.Histogram
}

func runSimulate() {
	builder := permitbucket.NewBuilder().
		RefillRate(*simulateQuantity, *simulateInterval).
		Max(*simulateMax)

	if *simulateThreshold > 0 {
		builder.Threshold(*simulateThreshold)
	}

	bucket, err := builder.Build()
	kingpin.FatalIfError(err, "Invalid bucket")

	fmt.Printf("Simulating %v callers taking %v tokens for %v from %v\n",
		*simulateGoroutines, *simulateTokens, *simulateDuration, bucket)

	result := &simulationResult{sleepMicros: hdrhistogram.New(0, maxSleepMicros, 3)}
	deadline := time.Now().Add(*simulateDuration)

	var wg sync.WaitGroup
	for i := 0; i < *simulateGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.merge(caller(bucket, *simulateTokens, deadline, result))
		}()
	}

	wg.Wait()
	result.report(bucket, *simulateDuration)
}

// caller acquires tokens until deadline. Refused callers sleep for as long as the bucket advises,
// or a refill interval if it gives no estimate.
func caller(bucket *permitbucket.Bucket, tokens uint64, deadline time.Time, result *simulationResult) *hdrhistogram.Histogram {
	sleeps := hdrhistogram.New(0, maxSleepMicros, 3)
	interval := bucket.Rate().Interval

	for time.Now().Before(deadline) {
		permit, err := bucket.TryPermit()
		if err == nil {
			_, err = bucket.TryAcquire(permit, tokens)
		}

		if err == nil {
			result.served.Add(int64(tokens))
			continue
		}

		reason, _ := permitbucket.ReasonOf(err)
		switch reason {
		case permitbucket.ER_EXCEEDS_CAPACITY:
			result.denied.Add(1)
		case permitbucket.ER_NOT_ENOUGH_TOKENS:
			result.short.Add(1)
		case permitbucket.ER_HIGH_CONTENTION:
			result.contended.Add(1)
		}

		sleep := interval
		var be *permitbucket.BucketError
		if errors.As(err, &be) {
			if wait, ok := be.WaitTime(); ok {
				sleep = wait - bucket.Elapsed()
			}
		}

		if sleep > 0 {
			result.sleeps.Add(1)
			micros := int64(sleep / time.Microsecond)
			if micros > maxSleepMicros {
				micros = maxSleepMicros
			}
			if err := sleeps.RecordValue(micros); err != nil {
				logging.Debugf("Unable to record sleep %v: %v", sleep, err)
			}
			time.Sleep(sleep)
		}
	}

	return sleeps
}

func (r *simulationResult) merge(h *hdrhistogram.Histogram) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleepMicros.Merge(h)
}

func (r *simulationResult) report(bucket *permitbucket.Bucket, d time.Duration) {
	served := r.served.Load()
	fmt.Printf("Tokens served:        %d (%.1f/s)\n", served, float64(served)/d.Seconds())
	fmt.Printf("Permits denied:       %d\n", r.denied.Load())
	fmt.Printf("Not enough tokens:    %d\n", r.short.Load())
	fmt.Printf("High contention:      %d\n", r.contended.Load())
	fmt.Printf("Sleeps:               %d (p50 %v, p99 %v, max %v)\n", r.sleeps.Load(),
		micros(r.sleepMicros.ValueAtQuantile(50)),
		micros(r.sleepMicros.ValueAtQuantile(99)),
		micros(r.sleepMicros.Max()))
	fmt.Printf("Tokens left:          %d\n", bucket.Available())
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
