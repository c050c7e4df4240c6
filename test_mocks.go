// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"sync"
	"time"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/events"
)

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Unix(1000000, 0)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockEmitter queues events on Events, dropping them once it is full.
type MockEmitter struct {
	Events chan events.Event
}

func (m *MockEmitter) Emit(e events.Event) {
	select {
	case m.Events <- e:
	default:
	}
}

func NewReaperConfigForTests() config.ReaperConfig {
	r := config.NewReaperConfig()
	r.MinFrequency = 100 * time.Millisecond
	r.InitSleep = 100 * time.Millisecond
	return r
}

// NewBucketContainerWithMocks builds a container over cfg that emits to a buffered MockEmitter and
// uses clock for every bucket it creates.
func NewBucketContainerWithMocks(cfg *config.ServiceConfig, clock Clock) (*bucketContainer, *MockEmitter) {
	e := &MockEmitter{Events: make(chan events.Event, 1000)}
	bc := NewBucketContainer(e, NewReaperConfigForTests(), clock)
	bc.Init(cfg)

	return bc, e
}
