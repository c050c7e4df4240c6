// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/square/permitbucket/config/internal"
)

type MemoryConfigPersister struct {
	config  string
	configs map[string]*ServiceConfig
	*internal.Notifier
	*sync.RWMutex
}

func NewMemoryConfigPersister() *MemoryConfigPersister {
	p := &MemoryConfigPersister{
		configs:  make(map[string]*ServiceConfig),
		Notifier: internal.NewNotifier(),
		RWMutex:  &sync.RWMutex{}}

	p.Notify()
	return p
}

// PersistAndNotify persists a configuration passed in.
func (m *MemoryConfigPersister) PersistAndNotify(_ string, cfg *ServiceConfig) error {
	if cfg == nil {
		return errors.New("cannot persist a nil config")
	}

	m.Lock()
	defer m.Unlock()

	m.config = HashConfig(cfg)
	m.configs[m.config] = CloneConfig(cfg)

	// ... and notify
	m.Notify()

	return nil
}

// ReadPersistedConfig provides a config previously persisted.
func (m *MemoryConfigPersister) ReadPersistedConfig() (*ServiceConfig, error) {
	m.RLock()
	defer m.RUnlock()

	cfg := m.configs[m.config]
	if cfg == nil {
		return nil, errors.New("no config persisted")
	}

	return CloneConfig(cfg), nil
}

// ReadHistoricalConfigs returns an array of previously persisted configs
func (m *MemoryConfigPersister) ReadHistoricalConfigs() ([]*ServiceConfig, error) {
	m.RLock()
	defer m.RUnlock()

	return CloneConfigs(m.configs), nil
}

// ConfigChangedWatcher returns a channel that is notified whenever configuration changes are
// detected. Changes are coalesced so that a single notification may be emitted for multiple
// changes.
func (m *MemoryConfigPersister) ConfigChangedWatcher() <-chan struct{} {
	return m.Notifier.Watcher
}

// Close closes the notification channel.
func (m *MemoryConfigPersister) Close() {
	close(m.Notifier.Watcher)
}
