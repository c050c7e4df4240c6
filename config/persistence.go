// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

// ConfigPersister is an interface that persists configs and notifies a channel of changes.
type ConfigPersister interface {
	// PersistAndNotify persists a configuration passed in. oldHash is the hash of the config the
	// change was based on.
	PersistAndNotify(oldHash string, cfg *ServiceConfig) error
	// ConfigChangedWatcher returns a channel that is notified whenever configuration changes are
	// detected. Changes are coalesced so that a single notification may be emitted for multiple
	// changes.
	ConfigChangedWatcher() <-chan struct{}
	// ReadPersistedConfig provides a config previously persisted.
	ReadPersistedConfig() (*ServiceConfig, error)
	// ReadHistoricalConfigs returns an array of previously persisted configs
	ReadHistoricalConfigs() ([]*ServiceConfig, error)
	// Close makes sure all persister resources are closed.
	Close()
}
