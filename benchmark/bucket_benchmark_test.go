// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package benchmark measures permit and token throughput.
package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/square/permitbucket"
	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/test/helpers"
)

var benchmarkCfg = func() *config.ServiceConfig {
	c := config.NewDefaultServiceConfig()
	config.SetDynamicBucketTemplate(c, config.NewDefaultBucketConfig(""))
	c.MaxDynamicBuckets = 0

	helpers.PanicError(config.AddBucket(c, config.NewDefaultBucketConfig("y")))

	return c
}()

var benchmarkContainer, _ = permitbucket.NewBucketContainerWithMocks(benchmarkCfg, permitbucket.SystemClock)

func newBenchmarkBucket(threshold uint64) *permitbucket.Bucket {
	builder := permitbucket.NewBuilder().
		RefillRate(1<<40, time.Nanosecond).
		Max(1 << 62)

	if threshold > 0 {
		builder.Threshold(threshold)
	}

	b, err := builder.Build()
	helpers.PanicError(err)
	return b
}

func BenchmarkDynamicBucket(b *testing.B) {
	for i := 0; i < b.N; i++ {
		bucket := fmt.Sprintf("new.%d", i)
		_, _ = benchmarkContainer.FindBucket(bucket)
	}
}

func BenchmarkFindBucket(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = benchmarkContainer.FindBucket("y")
	}
}

func BenchmarkPermitAndAcquire(b *testing.B) {
	bucket := newBenchmarkBucket(0)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = bucket.TryAcquire(bucket.GetPermit(), 1)
	}
}

func BenchmarkThresholdPermitParallel(b *testing.B) {
	bucket := newBenchmarkBucket(10)
	b.ResetTimer()
	b.SetParallelism(8)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if permit := bucket.GetPermit(); permit != nil {
				_ = bucket.TryAcquireOne(permit)
			}
		}
	})
}

func BenchmarkAllowParallel(b *testing.B) {
	cfg := config.NewDefaultServiceConfig()
	one := config.NewDefaultBucketConfig("one")
	one.Quantity = 1 << 40
	one.Max = 1 << 62
	helpers.PanicError(config.AddBucket(cfg, one))

	s := permitbucket.New(config.NewMemoryConfig(cfg), config.NewReaperConfig(), 0)
	if _, err := s.Start(); err != nil {
		b.Fatal(err)
	}
	defer s.Stop()

	b.ResetTimer()
	b.SetParallelism(8)
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_, _ = s.Allow(ctx, "one", 1)
		}
	})
}
