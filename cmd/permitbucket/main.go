// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Command permitbucket runs a permitbucket service, validates its configs, administers a running
// service, and simulates load against a single bucket.
package main

import (
	"fmt"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/logging"
)

var (
	app      = kingpin.New("permitbucket", "Threshold-gated token buckets.")
	logLevel = app.Flag("log-level", "Log level.").Default("info").Enum("trace", "debug", "info", "warning", "error")

	// serve
	serve           = app.Command("serve", "Run the service with its admin console.")
	serveConfig     = serve.Flag("config", "YAML config used when the persister holds none.").Short('c').ExistingFile()
	servePersister  = serve.Flag("persister", "Where configs are persisted.").Default("memory").Enum("memory", "disk", "zk", "mysql", "datastore")
	serveDiskPath   = serve.Flag("disk-path", "File the disk persister writes to.").Default("permitbucket.yaml").String()
	serveZkServers  = serve.Flag("zk-server", "ZooKeeper server; may be repeated.").Default("localhost:2181").Strings()
	serveZkPath     = serve.Flag("zk-path", "ZooKeeper node holding configs.").Default("/permitbucket").String()
	serveMysqlUser  = serve.Flag("mysql-user", "MySQL user.").Default("root").String()
	serveMysqlPass  = serve.Flag("mysql-password", "MySQL password.").Envar("PERMITBUCKET_MYSQL_PASSWORD").String()
	serveMysqlHost  = serve.Flag("mysql-host", "MySQL host.").Default("localhost").String()
	serveMysqlPort  = serve.Flag("mysql-port", "MySQL port.").Default("3306").Int()
	serveMysqlDB    = serve.Flag("mysql-db", "MySQL database.").Default("permitbucket").String()
	serveGcpProject = serve.Flag("gcp-project", "Google Cloud project for the datastore persister.").String()
	serveGcpCreds   = serve.Flag("gcp-credentials", "Google Cloud credentials file.").String()
	servePoll       = serve.Flag("poll", "How often polling persisters check for changes.").Default("10s").Duration()
	serveAdmin      = serve.Flag("admin", "Admin console listen address.").Default("localhost:8080").String()
	serveRedis      = serve.Flag("redis", "Redis address for dynamic bucket stats. In-memory stats if unset.").String()
	serveJitter     = serve.Flag("max-jitter", "Maximum random delay, in millis, before applying a config change.").Default("0").Int()

	// check
	check     = app.Command("check", "Validate a YAML config.")
	checkFile = check.Arg("file", "Config file.").Required().ExistingFile()

	// simulate
	simulate           = app.Command("simulate", "Hammer a single bucket from many goroutines.")
	simulateQuantity   = simulate.Flag("quantity", "Tokens added per interval.").Default("100").Uint64()
	simulateInterval   = simulate.Flag("interval", "Refill interval.").Default("100ms").Duration()
	simulateMax        = simulate.Flag("max", "Bucket capacity.").Default("1000").Uint64()
	simulateThreshold  = simulate.Flag("threshold", "Tokens required to grant a permit; 0 always grants.").Default("0").Uint64()
	simulateTokens     = simulate.Flag("tokens", "Tokens requested per acquisition.").Default("1").Uint64()
	simulateGoroutines = simulate.Flag("goroutines", "Concurrent callers.").Default("16").Int()
	simulateDuration   = simulate.Flag("duration", "How long to run.").Default("5s").Duration()

	// admin client
	host = app.Flag("host", "Admin console base URL.").Default("http://localhost:8080").String()
	user = app.Flag("user", "User recorded against changes.").Envar("USER").Default("permitbucket-cli").String()

	show       = app.Command("show", "Show the running config, or a single bucket.")
	showBucket = show.Arg("bucket", "Only show this bucket.").String()

	history = app.Command("history", "Show previously applied configs, newest first.")

	status = app.Command("status", "Show the live state of every bucket.")

	add     = app.Command("add", "Add a bucket from a JSON config.")
	addFile = add.Flag("file", "File from which to read the bucket config; stdin if unset.").Short('f').String()

	update     = app.Command("update", "Add or replace a bucket from a JSON config.")
	updateFile = update.Flag("file", "File from which to read the bucket config; stdin if unset.").Short('f').String()

	remove       = app.Command("remove", "Remove a bucket.")
	removeBucket = remove.Arg("bucket", "Bucket to remove.").Required().String()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	kingpin.FatalIfError(logging.SetLevel(*logLevel), "Invalid log level")

	switch cmd {
	case serve.FullCommand():
		runServe()
	case check.FullCommand():
		runCheck(*checkFile)
	case simulate.FullCommand():
		runSimulate()
	case show.FullCommand():
		runShow(*showBucket)
	case history.FullCommand():
		runHistory()
	case status.FullCommand():
		runStatus()
	case add.FullCommand():
		runAdd(*addFile)
	case update.FullCommand():
		runUpdate(*updateFile)
	case remove.FullCommand():
		runRemove(*removeBucket)
	default:
		kingpin.FatalUsage("Unknown command; should never happen.")
	}
}

func runCheck(file string) {
	cfg, err := config.ReadConfigFromFile(file)
	kingpin.FatalIfError(err, "Unable to read %v", file)
	kingpin.FatalIfError(config.Validate(cfg), "Invalid config %v", file)

	fmt.Printf("%v is valid: %v\n", file, cfg)
}
