// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

import (
	"path"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"

	"github.com/square/permitbucket/config/internal"
	"github.com/square/permitbucket/config/zkhelpers"
	"github.com/square/permitbucket/logging"
)

const (
	sessionTimeout = 3 * time.Second
	watchRetries   = 3
)

// ZkConfigPersister stores the current config as the data of a ZooKeeper node, and every config
// ever persisted as a child of that node named after its hash.
type ZkConfigPersister struct {
	conn *zk.Conn
	path string

	sync.RWMutex
	config []byte

	*internal.Notifier
	stopper chan struct{}
	wg      sync.WaitGroup
}

func NewZkConfigPersister(path string, servers []string) (*ZkConfigPersister, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, err
	}

	conf, err := createAndGetConfig(conn, path)
	if err != nil {
		conn.Close()
		return nil, err
	}

	persister := &ZkConfigPersister{
		conn:     conn,
		path:     path,
		Notifier: internal.NewNotifier(),
		stopper:  make(chan struct{})}

	persister.setAndNotify(conf)

	persister.wg.Add(1)
	go persister.zkEventListener()

	return persister, nil
}

// If the path does not exist, it tries to create it. It retries in case there's a race with
// another node coming up. The parent of path must already exist.
func createAndGetConfig(conn *zk.Conn, path string) ([]byte, error) {
	var conf []byte

	op := func() error {
		exists, _, err := conn.Exists(path)
		if err != nil {
			return err
		}

		if !exists {
			_, err = conn.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}

		conf, _, err = conn.Get(path)
		if err != nil {
			logging.Debugf("Could not get zk config at %v: %v", path, err)
		}

		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(b, watchRetries)); err != nil {
		return nil, errors.Wrapf(err, "could not create and get path %v", path)
	}

	return conf, nil
}

// PersistAndNotify persists a configuration passed in.
func (z *ZkConfigPersister) PersistAndNotify(_ string, cfg *ServiceConfig) error {
	b, err := MarshalBytes(cfg)
	if err != nil {
		return err
	}

	historical := path.Join(z.path, HashConfigBytes(b))
	if _, err = z.conn.Create(historical, b, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		return errors.Wrapf(err, "unable to create %v", historical)
	}

	// There is no notification, that happens when zookeeper alerts the watcher
	_, err = z.conn.Set(z.path, b, -1)
	return err
}

// ReadPersistedConfig provides a config previously persisted.
func (z *ZkConfigPersister) ReadPersistedConfig() (*ServiceConfig, error) {
	z.RLock()
	defer z.RUnlock()

	if len(z.config) == 0 {
		return nil, errors.Errorf("no config persisted at %v", z.path)
	}

	return UnmarshalBytes(z.config)
}

// ReadHistoricalConfigs returns an array of previously persisted configs
func (z *ZkConfigPersister) ReadHistoricalConfigs() ([]*ServiceConfig, error) {
	nodes, err := zkhelpers.ListSubtree(z.conn, z.path)
	if err != nil {
		return nil, err
	}

	configs := make([]*ServiceConfig, 0, len(nodes))
	for _, node := range nodes {
		if node == z.path {
			continue
		}

		b, _, err := z.conn.Get(node)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read %v", node)
		}

		cfg, err := UnmarshalBytes(b)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to unmarshal %v", node)
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}

func (z *ZkConfigPersister) zkEventListener() {
	defer z.wg.Done()

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	for {
		select {
		case <-z.stopper:
			return
		default:
		}

		config, _, ch, err := z.conn.GetW(z.path)
		if err != nil {
			wait := retry.NextBackOff()
			logging.Warnf("Received error from zookeeper when fetching %s, retrying in %v: %+v", z.path, wait, err)

			select {
			case <-z.stopper:
				return
			case <-time.After(wait):
			}

			continue
		}

		retry.Reset()
		z.setAndNotify(config)

		select {
		case <-z.stopper:
			return
		case event := <-ch:
			if event.Err != nil {
				logging.Warnf("Received error from zookeeper: %+v", event)
			}
		}
	}
}

func (z *ZkConfigPersister) setAndNotify(config []byte) {
	z.Lock()
	z.config = config
	z.Unlock()

	// ... and notify
	z.Notify()
}

// ConfigChangedWatcher returns a channel that is notified whenever configuration changes are
// detected. Changes are coalesced so that a single notification may be emitted for multiple
// changes.
func (z *ZkConfigPersister) ConfigChangedWatcher() <-chan struct{} {
	return z.Notifier.Watcher
}

func (z *ZkConfigPersister) Close() {
	close(z.stopper)
	z.conn.Close()
	z.wg.Wait()
	close(z.Notifier.Watcher)
}
