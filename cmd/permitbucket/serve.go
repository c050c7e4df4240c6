// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/redis.v5"

	"github.com/square/permitbucket"
	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/config/cloudpersisters/google"
	"github.com/square/permitbucket/config/mysqlpersister"
	"github.com/square/permitbucket/logging"
	"github.com/square/permitbucket/stats"
)

const (
	datastoreNamespace = "permitbucket"
	datastoreEntity    = "ServiceConfig"
	redisStatsPrefix   = "permitbucket"
)

func runServe() {
	persister, err := newPersister()
	kingpin.FatalIfError(err, "Unable to create %v persister", *servePersister)
	defer persister.Close()

	kingpin.FatalIfError(seedConfig(persister, *serveConfig), "Unable to seed config")

	server := permitbucket.New(persister, config.NewReaperConfig(), *serveJitter)
	server.SetStatsListener(newStatsListener())

	if _, e := server.Start(); e != nil {
		logging.Fatalf("Unable to start: %v", e)
	}

	// Serve Admin Console
	logging.Infof("Starting admin server on %v", *serveAdmin)
	router := mux.NewRouter()
	server.ServeAdminConsole(router)
	go func() {
		if e := http.ListenAndServe(*serveAdmin, router); e != nil {
			logging.Fatalf("Admin server failed: %v", e)
		}
	}()

	// Block until SIGTERM or SIGINT
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	_, _ = server.Stop()
}

func newPersister() (config.ConfigPersister, error) {
	switch *servePersister {
	case "disk":
		return config.NewDiskConfigPersister(*serveDiskPath)
	case "zk":
		return config.NewZkConfigPersister(*serveZkPath, *serveZkServers)
	case "mysql":
		connector := mysqlpersister.NewUnsafeConnector(*serveMysqlUser, *serveMysqlPass, *serveMysqlHost, *serveMysqlPort, *serveMysqlDB)
		return mysqlpersister.New(connector, *servePoll)
	case "datastore":
		return google.New(*serveGcpProject, *serveGcpCreds, datastoreNamespace, datastoreEntity, *servePoll)
	default:
		return config.NewMemoryConfigPersister(), nil
	}
}

// seedConfig persists the config in file, unless the persister already holds one.
func seedConfig(persister config.ConfigPersister, file string) error {
	if _, err := persister.ReadPersistedConfig(); err == nil {
		logging.Info("Using the persisted config")
		return nil
	}

	cfg := config.NewDefaultServiceConfig()
	if file != "" {
		var err error
		if cfg, err = config.ReadConfigFromFile(file); err != nil {
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid seed config")
	}

	logging.Infof("Seeding config %v", cfg)
	return persister.PersistAndNotify(config.HashConfig(cfg), cfg)
}

func newStatsListener() stats.Listener {
	if *serveRedis == "" {
		return stats.NewMemoryStatsListener()
	}

	listener, err := stats.NewRedisStatsListener(&redis.Options{Addr: *serveRedis}, redisStatsPrefix)
	kingpin.FatalIfError(err, "Unable to use Redis at %v", *serveRedis)
	return listener
}
