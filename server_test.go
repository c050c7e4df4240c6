// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/events"
	"github.com/square/permitbucket/stats"
	"github.com/square/permitbucket/test/helpers"
)

func serverConfig() *config.ServiceConfig {
	cfg := config.NewDefaultServiceConfig()

	plain := config.NewDefaultBucketConfig("plain")
	plain.Quantity = 10
	config.AddBucket(cfg, plain)

	gated := config.NewDefaultBucketConfig("gated")
	gated.Quantity = 10
	gated.Threshold = 50
	empty := uint64(0)
	gated.Initial = &empty
	config.AddBucket(cfg, gated)

	config.SetDynamicBucketTemplate(cfg, config.NewDefaultBucketConfig(""))
	cfg.MaxDynamicBuckets = 1

	config.ApplyDefaults(cfg)
	return cfg
}

func startTestServer(t *testing.T, cfg *config.ServiceConfig, statsListener stats.Listener) (*server, *ManualClock, chan events.Event) {
	t.Helper()

	s := New(config.NewMemoryConfig(cfg), NewReaperConfigForTests(), 0).(*server)
	clock := NewManualClock()
	s.clock = clock

	evs := make(chan events.Event, 1000)
	s.SetListener(func(e events.Event) {
		evs <- e
	}, 1000)

	if statsListener != nil {
		s.SetStatsListener(statsListener)
	}

	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { s.Stop() })
	return s, clock, evs
}

func awaitEvent(t *testing.T, evs chan events.Event, eventType events.EventType) events.Event {
	t.Helper()

	timeout := time.After(time.Second)
	for {
		select {
		case e := <-evs:
			if e.EventType() == eventType {
				return e
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %v", eventType)
			return nil
		}
	}
}

func TestValidServer(t *testing.T) {
	s := NewWithDefaultConfig()

	started, err := s.Start()
	assert.True(t, started)
	assert.NoError(t, err)

	_, err = s.Start()
	assert.Error(t, err)

	stopped, _ := s.Stop()
	assert.True(t, stopped)

	stopped, _ = s.Stop()
	assert.False(t, stopped)
}

func TestNotStarted(t *testing.T) {
	s := NewWithDefaultConfig()

	_, err := s.Allow(context.Background(), "a", 1)
	assert.True(t, IsReason(err, ER_NO_BUCKET))
	assert.Error(t, s.GetServerAdministrable().AddBucket(config.NewDefaultBucketConfig("a"), "test"))
}

func TestListenersAfterStart(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	helpers.ExpectingPanic(t, func() {
		s.SetListener(func(events.Event) {}, 1)
	})

	helpers.ExpectingPanic(t, func() {
		s.SetStatsListener(stats.NewMemoryStatsListener())
	})
}

func TestBadEventQueueSize(t *testing.T) {
	helpers.ExpectingPanic(t, func() {
		NewWithDefaultConfig().SetListener(func(events.Event) {}, 0)
	})
}

func TestAllowServesTokens(t *testing.T) {
	s, _, evs := startTestServer(t, serverConfig(), nil)

	wait, err := s.Allow(context.Background(), "plain", 5)
	assert.NoError(t, err)
	assert.Zero(t, wait)

	e := awaitEvent(t, evs, events.EVENT_TOKENS_SERVED)
	assert.Equal(t, "plain", e.BucketName())
	assert.Equal(t, uint64(5), e.NumTokens())
	assert.False(t, e.Dynamic())
}

func TestAllowNotEnoughTokens(t *testing.T) {
	s, _, evs := startTestServer(t, serverConfig(), nil)

	// plain starts with 10 tokens, refilling 10 a second.
	wait, err := s.Allow(context.Background(), "plain", 20)
	assert.True(t, IsReason(err, ER_NOT_ENOUGH_TOKENS), "Got %v", err)
	assert.Equal(t, 2*time.Second, wait)

	be := err.(*BucketError)
	assert.True(t, be.HasWait)
	assert.Equal(t, wait, be.Wait)

	e := awaitEvent(t, evs, events.EVENT_NOT_ENOUGH_TOKENS)
	assert.Equal(t, 2*time.Second, e.WaitTime())
	assert.Equal(t, uint64(20), e.NumTokens())
}

func TestAllowAboveMax(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	wait, err := s.Allow(context.Background(), "plain", 1000)
	assert.True(t, IsReason(err, ER_NOT_ENOUGH_TOKENS))
	assert.Zero(t, wait)
	assert.False(t, err.(*BucketError).HasWait)
}

func TestAllowPermitDenied(t *testing.T) {
	s, clock, evs := startTestServer(t, serverConfig(), nil)

	// gated starts empty and needs 50 tokens to grant a permit: 5 refills.
	wait, err := s.Allow(context.Background(), "gated", 1)
	assert.True(t, IsReason(err, ER_EXCEEDS_CAPACITY), "Got %v", err)
	assert.Equal(t, 6*time.Second, wait)

	e := awaitEvent(t, evs, events.EVENT_PERMIT_DENIED)
	assert.Equal(t, "gated", e.BucketName())

	// Waits are relative to now, not to when the bucket was built.
	clock.Advance(3 * time.Second)
	wait, err = s.Allow(context.Background(), "gated", 1)
	assert.True(t, IsReason(err, ER_EXCEEDS_CAPACITY))
	assert.Equal(t, 3*time.Second, wait)

	clock.Advance(3 * time.Second)
	wait, err = s.Allow(context.Background(), "gated", 1)
	assert.NoError(t, err)
	assert.Zero(t, wait)
}

func TestAllowNoSuchBucket(t *testing.T) {
	cfg := serverConfig()
	cfg.DynamicBucketTemplate = nil
	s, _, evs := startTestServer(t, cfg, nil)

	_, err := s.Allow(context.Background(), "nope", 1)
	assert.True(t, IsReason(err, ER_NO_BUCKET))

	e := awaitEvent(t, evs, events.EVENT_BUCKET_MISS)
	assert.Equal(t, "nope", e.BucketName())
	assert.False(t, e.Dynamic())
}

func TestAllowTooManyBuckets(t *testing.T) {
	s, _, evs := startTestServer(t, serverConfig(), nil)

	_, err := s.Allow(context.Background(), "dyn1", 1)
	assert.NoError(t, err)

	e := awaitEvent(t, evs, events.EVENT_TOKENS_SERVED)
	assert.True(t, e.Dynamic())

	_, err = s.Allow(context.Background(), "dyn2", 1)
	assert.True(t, IsReason(err, ER_TOO_MANY_BUCKETS))

	e = awaitEvent(t, evs, events.EVENT_BUCKET_MISS)
	assert.True(t, e.Dynamic())
}

func TestUpdateConfig(t *testing.T) {
	originalConfig := serverConfig()
	originalConfig.Version = 2
	originalConfig.Date = time.Now().Unix() - 10
	s, _, _ := startTestServer(t, originalConfig, nil)

	newConfig := config.NewDefaultServiceConfig()

	if err := s.UpdateConfig(newConfig, "test"); err != nil {
		t.Fatal("Error when updating config", err)
	}

	helpers.Eventually(t, time.Second, func() bool {
		return s.Configs().Version != originalConfig.Version
	}, "Timeout waiting for config to change!")

	cfg := s.Configs()

	if cfg.User != "test" {
		t.Errorf("User %+v does not match passed in user \"test\"", cfg.User)
	}

	if cfg.Version != 3 {
		t.Errorf("Version %+v does not match current version: 3", cfg.Version)
	}

	if cfg.Date <= originalConfig.Date {
		t.Errorf("Date %+v was not updated from %+v", cfg.Date, originalConfig.Date)
	}

	_, err := s.Allow(context.Background(), "plain", 1)
	assert.True(t, IsReason(err, ER_NO_BUCKET))
}

func TestUpdateConfigInvalid(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	bad := config.NewDefaultBucketConfig("bad")
	bad.Threshold = bad.Max + 1
	assert.Error(t, s.AddBucket(bad, "test"))
	assert.Equal(t, int32(0), s.Configs().Version)
}

func TestAddUpdateDeleteBucket(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	assert.NoError(t, s.AddBucket(config.NewDefaultBucketConfig("added"), "test"))
	helpers.Eventually(t, time.Second, func() bool {
		return s.Configs().Buckets["added"] != nil
	}, "Bucket never added")

	assert.Error(t, s.AddBucket(config.NewDefaultBucketConfig("added"), "test"))

	_, err := s.Allow(context.Background(), "added", 1)
	assert.NoError(t, err)

	updated := config.NewDefaultBucketConfig("added")
	updated.Max = 500
	assert.NoError(t, s.UpdateBucket(updated, "test"))
	helpers.Eventually(t, time.Second, func() bool {
		return s.Configs().Buckets["added"].Max == 500
	}, "Bucket never updated")

	assert.NoError(t, s.DeleteBucket("added", "test"))
	helpers.Eventually(t, time.Second, func() bool {
		return s.Configs().Buckets["added"] == nil
	}, "Bucket never deleted")

	assert.Error(t, s.DeleteBucket("added", "test"))
}

func TestHistoricalConfigs(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	assert.NoError(t, s.AddBucket(config.NewDefaultBucketConfig("added"), "test"))
	helpers.Eventually(t, time.Second, func() bool {
		return s.Configs().Version == 1
	}, "Config never applied")

	history, err := s.HistoricalConfigs()
	assert.NoError(t, err)

	if assert.Len(t, history, 2) {
		assert.Equal(t, int32(1), history[0].Version)
		assert.Equal(t, int32(0), history[1].Version)
	}
}

func TestBucketStatuses(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	statuses := s.BucketStatuses()
	if assert.Len(t, statuses, 2) {
		gated, plain := statuses[0], statuses[1]

		assert.Equal(t, "gated", gated.Name)
		assert.Equal(t, uint64(50), gated.Threshold)
		assert.Equal(t, uint64(0), gated.Available)
		assert.False(t, gated.Permitting)

		assert.Equal(t, "plain", plain.Name)
		assert.Equal(t, uint64(10), plain.Available)
		assert.True(t, plain.Permitting)
	}
}

func TestStatsListener(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), stats.NewMemoryStatsListener())

	_, err := s.Allow(context.Background(), "dyn", 3)
	assert.NoError(t, err)

	helpers.Eventually(t, time.Second, func() bool {
		return len(s.TopDynamicHits()) == 1
	}, "Hit never recorded")

	assert.Equal(t, int64(3), s.DynamicBucketStats("dyn").Hits)
	assert.Empty(t, s.TopDynamicMisses())
}

func TestNoStatsListener(t *testing.T) {
	s, _, _ := startTestServer(t, serverConfig(), nil)

	assert.Nil(t, s.TopDynamicHits())
	assert.Nil(t, s.TopDynamicMisses())
	assert.Nil(t, s.DynamicBucketStats("dyn"))
}
