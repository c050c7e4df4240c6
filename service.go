// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"

	"github.com/square/permitbucket/admin"
	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/events"
	"github.com/square/permitbucket/logging"
	"github.com/square/permitbucket/stats"
)

// Status is the lifecycle state of a server.
type Status int

const (
	Stopped Status = iota
	Started
)

func (s Status) String() string {
	switch s {
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Implements the permitbucket.Server interface
type server struct {
	currentStatus     Status
	bucketContainer   *bucketContainer
	listener          events.Listener
	statsListener     stats.Listener
	eventQueueBufSize int
	maxJitterMillis   int
	producer          *events.EventProducer
	cfgs              *config.ServiceConfig
	persister         config.ConfigPersister
	reaperConfig      config.ReaperConfig
	clock             Clock
	stopper           chan struct{}
	sync.RWMutex      // Embedded mutex
}

func (s *server) String() string {
	return fmt.Sprintf("Permit Bucket Server running with status %v", s.currentStatus)
}

func (s *server) Start() (bool, error) {
	if s.currentStatus == Started {
		return false, errors.New("server already started")
	}

	bufSize := s.eventQueueBufSize

	if bufSize < 1 {
		bufSize = 1
	}

	// Set up listeners
	if s.listener != nil || s.statsListener != nil {
		listener, statsListener := s.listener, s.statsListener
		s.producer = events.RegisterListener(func(e events.Event) {
			if listener != nil {
				listener(e)
			}

			if statsListener != nil {
				statsListener.HandleEvent(e)
			}
		}, bufSize)
	} else {
		s.producer = events.NewNilProducer()
	}

	s.createBucketContainer()
	<-s.persister.ConfigChangedWatcher()
	if err := s.readUpdatedConfig(0); err != nil {
		logging.Warnf("Starting with the default config: %v", err)
		s.updateBucketContainer(config.NewDefaultServiceConfig())
	}

	go s.configListener(s.persister.ConfigChangedWatcher())

	s.currentStatus = Started
	logging.Info(s)
	return true, nil
}

func (s *server) Stop() (bool, error) {
	if s.currentStatus != Started {
		return false, nil
	}

	s.currentStatus = Stopped
	close(s.stopper)

	// Referencing s.bucketContainer should be guarded
	s.RLock()
	defer s.RUnlock()
	s.bucketContainer.Stop()
	return true, nil
}

func (s *server) Allow(ctx context.Context, name string, tokens uint64) (time.Duration, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "permitbucket.Allow")
	defer span.Finish()

	span.SetTag("bucket", name)
	span.SetTag("tokens", tokens)

	wait, err := s.allow(name, tokens)
	if err != nil {
		ext.Error.Set(span, true)
		if reason, ok := ReasonOf(err); ok {
			span.SetTag("reason", reason.String())
		}
	}

	return wait, err
}

func (s *server) allow(name string, tokens uint64) (time.Duration, error) {
	s.RLock()
	bc := s.bucketContainer
	s.RUnlock()

	if bc == nil {
		return 0, newError("server not started", ER_NO_BUCKET)
	}

	b, err := bc.FindBucket(name)

	if err != nil {
		// Attempted to create a dynamic bucket and failed.
		s.Emit(events.NewBucketMissedEvent(name, true))
		return 0, err
	}

	if b == nil {
		s.Emit(events.NewBucketMissedEvent(name, false))
		return 0, newError("no such bucket "+name, ER_NO_BUCKET)
	}

	permit, err := b.TryPermit()
	if err != nil {
		wait, err := relativeWait(err, b.Bucket)
		s.Emit(events.NewPermitDeniedEvent(name, b.Dynamic(), tokens, wait))
		return wait, err
	}

	if _, err = b.TryAcquire(permit, tokens); err != nil {
		wait, err := relativeWait(err, b.Bucket)
		reason, _ := ReasonOf(err)

		switch reason {
		case ER_NOT_ENOUGH_TOKENS:
			s.Emit(events.NewNotEnoughTokensEvent(name, b.Dynamic(), tokens, wait))
		case ER_HIGH_CONTENTION:
			s.Emit(events.NewHighContentionEvent(name, b.Dynamic(), tokens))
		default:
			s.Emit(events.NewInvalidPermitEvent(name, b.Dynamic(), tokens))
		}

		return wait, err
	}

	// The only positive result
	s.Emit(events.NewTokensServedEvent(name, b.Dynamic(), tokens))
	return 0, nil
}

func (s *server) ServeAdminConsole(router *mux.Router) {
	admin.ServeAdminConsole(s, router)
}

func (s *server) SetLogger(logger logging.Logger) {
	if s.currentStatus == Started {
		panic("Cannot set logger after server has started!")
	}
	logging.SetLogger(logger)
}

func (s *server) SetStatsListener(listener stats.Listener) {
	if s.currentStatus == Started {
		panic("Cannot add listener after server has started!")
	}

	s.statsListener = listener
}

func (s *server) SetListener(listener events.Listener, eventQueueBufSize int) {
	if s.currentStatus == Started {
		panic("Cannot add listener after server has started!")
	}

	if eventQueueBufSize < 1 {
		panic("Event queue buffer size must be greater than 0")
	}

	s.listener = listener
	s.eventQueueBufSize = eventQueueBufSize
}

func (s *server) Emit(e events.Event) {
	if s.producer != nil {
		s.producer.Emit(e)
	}
}

func (s *server) configListener(ch <-chan struct{}) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}

			jitter := 0
			if s.maxJitterMillis != 0 {
				// Pick a random number between 0 and maxJitterMillis
				jitter = rand.Intn(s.maxJitterMillis)
			}

			if err := s.readUpdatedConfig(time.Duration(jitter) * time.Millisecond); err != nil {
				logging.Error(err)
			}
		case <-s.stopper:
			return
		}
	}
}

func (s *server) readUpdatedConfig(jitter time.Duration) error {
	newConfig, err := s.persister.ReadPersistedConfig()

	if err != nil {
		return errors.Wrap(err, "error reading persisted config")
	}

	if err = config.Validate(newConfig); err != nil {
		return errors.Wrapf(err, "ignoring invalid config version %v", newConfig.Version)
	}

	if jitter != 0 {
		time.Sleep(jitter)
	}

	s.updateBucketContainer(newConfig)
	return nil
}

func (s *server) createBucketContainer() {
	s.Lock()
	defer s.Unlock()

	if s.bucketContainer != nil {
		logging.Fatalf("A bucketcontainer already exists; this shouldn't happen. BucketContainer=%v", s.bucketContainer)
	}
	s.bucketContainer = NewBucketContainer(s, s.reaperConfig, s.clock)
}

func (s *server) updateBucketContainer(newConfig *config.ServiceConfig) {
	s.Lock()
	defer s.Unlock()

	s.cfgs = newConfig
	s.bucketContainer.Update(newConfig)
	logging.Infof("Applied config version %v by %v", newConfig.Version, newConfig.User)
}

func (s *server) updateConfig(user string, updater func(*config.ServiceConfig) error) error {
	s.RLock()
	current := s.cfgs
	s.RUnlock()

	if current == nil {
		return errors.New("server not started")
	}

	clonedCfg := config.CloneConfig(current)
	currentVersion := clonedCfg.Version

	err := updater(clonedCfg)

	if err != nil {
		return err
	}

	config.ApplyDefaults(clonedCfg)

	if err = config.Validate(clonedCfg); err != nil {
		return err
	}

	clonedCfg.User = user
	clonedCfg.Date = time.Now().Unix()
	clonedCfg.Version = currentVersion + 1

	return s.persister.PersistAndNotify(config.HashConfig(current), clonedCfg)
}

// Implements admin.Administrable
func (s *server) Configs() *config.ServiceConfig {
	s.RLock()
	defer s.RUnlock()
	return s.cfgs
}

func (s *server) UpdateConfig(c *config.ServiceConfig, user string) error {
	return s.updateConfig(user, func(clonedCfg *config.ServiceConfig) error {
		*clonedCfg = *config.CloneConfig(c)
		return nil
	})
}

func (s *server) AddBucket(b *config.BucketConfig, user string) error {
	return s.updateConfig(user, func(clonedCfg *config.ServiceConfig) error {
		return config.CreateBucket(clonedCfg, b)
	})
}

func (s *server) UpdateBucket(b *config.BucketConfig, user string) error {
	return s.updateConfig(user, func(clonedCfg *config.ServiceConfig) error {
		return config.UpdateBucket(clonedCfg, b)
	})
}

func (s *server) DeleteBucket(name, user string) error {
	return s.updateConfig(user, func(clonedCfg *config.ServiceConfig) error {
		return config.DeleteBucket(clonedCfg, name)
	})
}

func (s *server) BucketStatuses() []*admin.BucketStatus {
	s.RLock()
	bc := s.bucketContainer
	s.RUnlock()

	if bc == nil {
		return nil
	}

	buckets := bc.Buckets()
	statuses := make(sortedStatuses, len(buckets))

	for i, b := range buckets {
		available := b.Available()
		statuses[i] = &admin.BucketStatus{
			Name:       b.name,
			Dynamic:    b.Dynamic(),
			Available:  available,
			Max:        b.Max(),
			Threshold:  b.Threshold(),
			Permitting: available >= b.Threshold()}
	}

	sort.Sort(statuses)
	return statuses
}

func (s *server) TopDynamicHits() []*stats.BucketScore {
	if s.statsListener == nil {
		return nil
	}

	return s.statsListener.TopHits()
}

func (s *server) TopDynamicMisses() []*stats.BucketScore {
	if s.statsListener == nil {
		return nil
	}

	return s.statsListener.TopMisses()
}

func (s *server) DynamicBucketStats(bucket string) *stats.BucketScores {
	if s.statsListener == nil {
		return nil
	}

	return s.statsListener.Get(bucket)
}

func (s *server) HistoricalConfigs() ([]*config.ServiceConfig, error) {
	configs, err := s.persister.ReadHistoricalConfigs()

	if err != nil {
		return nil, err
	}

	return sortConfigsDesc(configs), nil
}

func (s *server) GetServerAdministrable() admin.Administrable {
	return s
}
