// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package mysqlpersister implements a ConfigPersister over a MySQL table of versioned configs.
// The table must already exist:
//
//	CREATE TABLE permitbucket (
//	  ID BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	  Version INT UNIQUE,
//	  Config BLOB);
package mysqlpersister

import (
	"sort"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/config/internal"
	"github.com/square/permitbucket/logging"
)

var ErrDuplicateConfig = errors.New("config with provided version number already exists")

const (
	tableName              = "permitbucket"
	mysqlErrDuplicateEntry = 1062
)

type MysqlPersister struct {
	latestVersion int
	db            *sqlx.DB
	m             *sync.RWMutex

	notifier        *internal.Notifier
	shutdown        chan struct{}
	fetcherShutdown chan struct{}

	configs map[int]*config.ServiceConfig
}

type configRow struct {
	Version int    `db:"Version"`
	Config  string `db:"Config"`
}

// New connects, loads every config already in the table and polls for new ones every
// pollingInterval.
func New(c Connector, pollingInterval time.Duration) (*MysqlPersister, error) {
	logging.Trace("Connecting to MySQL")
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}
	db := sqlx.NewDb(conn, "mysql")
	logging.Trace("Connecting to MySQL: OK")

	logging.Trace("Verifying table exists")
	q, args, err := sq.Select("1").From(tableName).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(q, args...); err != nil {
		return nil, errors.Wrapf(err, "table %v does not exist", tableName)
	}
	logging.Trace("Verifying table exists: OK")

	mp := &MysqlPersister{
		db:              db,
		configs:         make(map[int]*config.ServiceConfig),
		m:               &sync.RWMutex{},
		notifier:        internal.NewNotifier(),
		shutdown:        make(chan struct{}),
		fetcherShutdown: make(chan struct{}),
		latestVersion:   -1,
	}

	logging.Info("Pulling configs from MySQL")
	if _, err := mp.pullConfigs(); err != nil {
		return nil, err
	}

	mp.m.RLock()
	v := mp.latestVersion
	mp.m.RUnlock()
	logging.Infof("Pulling configs from MySQL: OK; Latest Version: %v", v)

	mp.notifyWatcher()

	go mp.configFetcher(pollingInterval)

	return mp, nil
}

func (mp *MysqlPersister) configFetcher(pollingInterval time.Duration) {
	defer close(mp.fetcherShutdown)

	for {
		select {
		case <-time.After(pollingInterval):
			if newConf, err := mp.pullConfigs(); err != nil {
				logging.Warnf("Received an error trying to fetch config updates: %s", err)
			} else if newConf {
				logging.Debug("New config(s) found in MySQL")
				mp.notifyWatcher()
			}
		case <-mp.shutdown:
			logging.Debug("Received shutdown signal, shutting down mysql watcher")
			return
		}
	}
}

// pullConfigs checks the database for new configs and returns true if there is a new config
func (mp *MysqlPersister) pullConfigs() (bool, error) {
	mp.m.RLock()
	v := mp.latestVersion
	mp.m.RUnlock()

	logging.Tracef("Fetching configs later than %v", v)
	q, args, err := sq.
		Select("Version", "Config").
		From(tableName).
		Where("Version > ?", v).
		OrderBy("Version ASC").ToSql()
	if err != nil {
		return false, err
	}

	var rows []configRow
	if err = mp.db.Select(&rows, q, args...); err != nil {
		return false, err
	}
	logging.Tracef("Fetching configs later than %v: OK", v)

	if len(rows) == 0 {
		logging.Debugf("No versions later than %v found", v)
		return false, nil
	}

	maxVersion := v
	mp.m.Lock()
	for _, r := range rows {
		c, err := config.UnmarshalBytes([]byte(r.Config))
		if err != nil {
			logging.Warnf("Could not unmarshal config version %v, error: %s", r.Version, err)
			continue
		}

		mp.configs[r.Version] = c
		maxVersion = r.Version
	}
	mp.latestVersion = maxVersion
	mp.m.Unlock()

	logging.Infof("Upgrading from version %v to %v", v, maxVersion)
	return maxVersion > v, nil
}

func (mp *MysqlPersister) notifyWatcher() {
	logging.Trace("Notifying config watcher")
	mp.notifier.Notify()
}

// PersistAndNotify inserts c as a new row. Notification happens once the fetcher sees the row.
func (mp *MysqlPersister) PersistAndNotify(_ string, c *config.ServiceConfig) error {
	logging.Infof("Persisting version %v", c.Version)
	b, err := config.MarshalBytes(c)
	if err != nil {
		return err
	}

	q, args, err := sq.Insert(tableName).Columns("Version", "Config").Values(c.Version, string(b)).ToSql()
	if err != nil {
		return err
	}

	if _, err = mp.db.Exec(q, args...); err != nil {
		if mysqlErr, ok := errors.Cause(err).(*mysql.MySQLError); ok && mysqlErr.Number == mysqlErrDuplicateEntry {
			return ErrDuplicateConfig
		}

		return err
	}

	logging.Infof("Persisting version %v: OK", c.Version)
	return nil
}

// ConfigChangedWatcher returns a channel that is notified whenever a new config is available.
func (mp *MysqlPersister) ConfigChangedWatcher() <-chan struct{} {
	return mp.notifier.Watcher
}

// ReadPersistedConfig provides a config previously persisted.
func (mp *MysqlPersister) ReadPersistedConfig() (*config.ServiceConfig, error) {
	mp.m.RLock()
	defer mp.m.RUnlock()

	c := mp.configs[mp.latestVersion]
	if c == nil {
		return nil, errors.New("persister has a nil config")
	}

	return config.CloneConfig(c), nil
}

// ReadHistoricalConfigs returns every config loaded, oldest first.
func (mp *MysqlPersister) ReadHistoricalConfigs() ([]*config.ServiceConfig, error) {
	mp.m.RLock()
	defer mp.m.RUnlock()

	versions := make([]int, 0, len(mp.configs))
	for k := range mp.configs {
		versions = append(versions, k)
	}

	sort.Ints(versions)

	configs := make([]*config.ServiceConfig, 0, len(versions))
	for _, v := range versions {
		configs = append(configs, config.CloneConfig(mp.configs[v]))
	}

	return configs, nil
}

func (mp *MysqlPersister) Close() {
	logging.Debug("Shutting down MySQL persister")
	close(mp.shutdown)
	<-mp.fetcherShutdown

	close(mp.notifier.Watcher)
	if err := mp.db.Close(); err != nil {
		logging.Errorf("Could not terminate mysql connection: %v", err)
	} else {
		logging.Debug("Shutting down MySQL persister: OK")
	}
}
