// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/square/permitbucket/config/internal"
)

// DiskConfigPersister is a ConfigPersister that saves configs to the local filesystem. Every
// config is written to its own file, named after its hash, and location is a symlink to the
// current one.
type DiskConfigPersister struct {
	location string
	*internal.Notifier
}

// NewDiskConfigPersister creates a new DiskConfigPersister
func NewDiskConfigPersister(location string) (*DiskConfigPersister, error) {
	fi, e := os.Stat(location)
	// This will catch nonexistent paths, as well as passing in a directory instead of a file.
	// Nonexistent files in an existing path, however, is allowed.
	if e != nil && !os.IsNotExist(e) {
		return nil, e
	}

	if e == nil && fi.IsDir() {
		return nil, errors.Errorf("%v is a directory", location)
	}

	d := &DiskConfigPersister{location, internal.NewNotifier()}

	// Notify that we're available for reading
	d.Notify()

	return d, nil
}

func writeFile(path string, bytes []byte) error {
	f, e := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if e != nil {
		return e
	}

	if _, e = f.Write(bytes); e != nil {
		f.Close()
		return e
	}

	return f.Close()
}

// PersistAndNotify persists a configuration passed in.
func (d *DiskConfigPersister) PersistAndNotify(_ string, cfg *ServiceConfig) error {
	b, e := MarshalBytes(cfg)
	if e != nil {
		return e
	}

	path := fmt.Sprintf("%s-%s", d.location, HashConfigBytes(b))
	if e = writeFile(path, b); e != nil {
		return errors.Wrapf(e, "unable to write %v", path)
	}

	if _, e := os.Lstat(d.location); e == nil {
		if e = os.Remove(d.location); e != nil {
			return e
		}
	}

	if e = os.Symlink(path, d.location); e != nil {
		return errors.Wrapf(e, "unable to link %v", d.location)
	}

	// ... and notify
	d.Notify()

	return nil
}

// ReadPersistedConfig provides a config previously persisted.
func (d *DiskConfigPersister) ReadPersistedConfig() (*ServiceConfig, error) {
	return readConfigFile(d.location)
}

func readConfigFile(path string) (*ServiceConfig, error) {
	b, e := ioutil.ReadFile(path)
	if e != nil {
		return nil, e
	}

	return UnmarshalBytes(b)
}

// ReadHistoricalConfigs returns an array of previously persisted configs
func (d *DiskConfigPersister) ReadHistoricalConfigs() ([]*ServiceConfig, error) {
	files, err := filepath.Glob(fmt.Sprintf("%s-*", d.location))
	if err != nil {
		return nil, err
	}

	configs := make([]*ServiceConfig, len(files))
	for i, file := range files {
		cfg, e := readConfigFile(file)
		if e != nil {
			return nil, errors.Wrapf(e, "unable to read %v", file)
		}

		configs[i] = cfg
	}

	return configs, nil
}

// ConfigChangedWatcher returns a channel that is notified whenever configuration changes are
// detected. Changes are coalesced so that a single notification may be emitted for multiple
// changes.
func (d *DiskConfigPersister) ConfigChangedWatcher() <-chan struct{} {
	return d.Notifier.Watcher
}

func (d *DiskConfigPersister) Close() {
	close(d.Notifier.Watcher)
}
