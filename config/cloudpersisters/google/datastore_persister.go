// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package google implements a ConfigPersister making use of Google Cloud's Datastore to store configuration.
// See https://cloud.google.com/datastore/ for more details.
//
// This package expects a Google Cloud account with Datastore enabled, and a JSON credentials file for a
// service account in the project. The Datastore namespace and entity type are passed in to New(). Do not
// create entities by hand; they should only ever be created by this package.
package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/config/internal"
	"github.com/square/permitbucket/logging"
)

// storedEntity stores the configuration as YAML, and some metadata about the configuration. storedEntities use a
// named key, of the format "version:{version_int}", to make it efficient to retrieve a specific version.
type storedEntity struct {
	Contents []byte
	Version  int32
	Date     time.Time
	User     string
	Hash     string
}

// DatastoreConfigPersister is a config persister that makes use of Google Cloud's Datastore service.
type DatastoreConfigPersister struct {
	projectId string
	namespace string
	entity    string
	client    *datastore.Client
	*internal.Notifier
	version     int
	newVersions chan int
	stopper     chan struct{}
}

func keyName(version int32) string {
	return fmt.Sprintf("version:%v", version)
}

func (p *DatastoreConfigPersister) PersistAndNotify(_ string, cfg *config.ServiceConfig) error {
	b, e := config.MarshalBytes(cfg)
	if e != nil {
		return e
	}

	s := &storedEntity{Contents: b,
		Version: cfg.Version,
		Date:    time.Unix(cfg.Date, 0),
		User:    cfg.User,
		Hash:    config.HashConfigBytes(b)}

	k := datastore.NameKey(p.entity, keyName(cfg.Version), nil)
	k.Namespace = p.namespace

	_, e = p.client.RunInTransaction(context.Background(), func(tx *datastore.Transaction) error {
		existing := &storedEntity{}
		e := tx.Get(k, existing)
		if e != nil && e != datastore.ErrNoSuchEntity {
			return e
		}

		if e == nil {
			if existing.Hash != s.Hash {
				return errors.Errorf("attempting to write configuration with version %v and hash %v, but a configuration with the same version and hash %v already exists",
					cfg.Version, s.Hash, existing.Hash)
			}

			// This version already exists. Do not overwrite.
			logging.Debugf("Version %v already exists; not clobbering.", cfg.Version)
			return nil
		}

		_, e = tx.Put(k, s)
		return e
	})

	if e != nil {
		return e
	}

	// ... and notify.
	p.Notify()

	return nil
}

func (p *DatastoreConfigPersister) ConfigChangedWatcher() <-chan struct{} {
	return p.Notifier.Watcher
}

func (p *DatastoreConfigPersister) ReadPersistedConfig() (*config.ServiceConfig, error) {
	_, s, e := p.getLatest(false)
	if e != nil {
		return nil, e
	}

	select {
	case p.newVersions <- int(s.Version):
	case <-p.stopper:
	}

	return config.UnmarshalBytes(s.Contents)
}

func (p *DatastoreConfigPersister) getLatest(keyOnly bool) (*datastore.Key, *storedEntity, error) {
	var entities []*storedEntity
	q := datastore.NewQuery(p.entity).
		Namespace(p.namespace).
		Order("-Version").
		Limit(1)

	if keyOnly {
		q = q.KeysOnly()
	}

	keys, e := p.client.GetAll(context.Background(), q, &entities)
	if e != nil {
		return nil, nil, e
	}

	if len(keys) != 1 {
		return nil, nil, errors.Errorf("expected 1 result, got %v result(s)", len(keys))
	}

	if keyOnly {
		return keys[0], nil, nil
	}

	return keys[0], entities[0], nil
}

// ReadHistoricalConfigs returns every stored config, newest first.
func (p *DatastoreConfigPersister) ReadHistoricalConfigs() ([]*config.ServiceConfig, error) {
	var entities []*storedEntity
	var e error

	if _, e = p.client.GetAll(context.Background(),
		datastore.NewQuery(p.entity).
			Namespace(p.namespace).
			Order("-Version"),
		&entities); e != nil {
		return nil, e
	}

	res := make([]*config.ServiceConfig, len(entities))
	for i, t := range entities {
		res[i], e = config.UnmarshalBytes(t.Contents)
		if e != nil {
			return nil, e
		}
	}

	return res, nil
}

func (p *DatastoreConfigPersister) poll(pollingDuration time.Duration) {
	t := time.NewTicker(pollingDuration)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			k, _, e := p.getLatest(true)
			if e != nil {
				logging.Warnf("Caught error %v when polling Google Datastore", e)
			} else if v := versionOf(k); v > p.version {
				logging.Infof("Latest version is %v", v)
				p.Notify()
			}
		case v := <-p.newVersions:
			p.version = v
		case <-p.stopper:
			return
		}
	}
}

func versionOf(k *datastore.Key) int {
	parts := strings.Split(k.Name, ":")
	if len(parts) != 2 {
		return -1
	}

	i, e := strconv.ParseInt(parts[1], 10, 64)
	if e != nil {
		return -1
	}

	return int(i)
}

func (p *DatastoreConfigPersister) Close() {
	close(p.stopper)
	if e := p.client.Close(); e != nil {
		logging.Warnf("Unable to close Google Datastore client: %v", e)
	}
}

func New(projectId, credentialsFile, namespace, entity string, pollingDuration time.Duration) (*DatastoreConfigPersister, error) {
	ctx := context.Background()
	o := option.WithServiceAccountFile(credentialsFile)
	client, err := datastore.NewClient(ctx, projectId, o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create Google Datastore client")
	}

	p := &DatastoreConfigPersister{
		projectId:   projectId,
		namespace:   namespace,
		entity:      entity,
		client:      client,
		Notifier:    internal.NewNotifier(),
		version:     -1,
		newVersions: make(chan int),
		stopper:     make(chan struct{})}

	go p.poll(pollingDuration)

	return p, nil
}
