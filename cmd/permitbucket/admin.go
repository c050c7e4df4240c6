// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"text/tabwriter"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v2"

	"github.com/square/permitbucket/client"
	"github.com/square/permitbucket/config"
)

func newClient() *client.Client {
	return client.New(nil, *host, *user)
}

func runShow(bucket string) {
	c := newClient()

	var out interface{}
	var err error
	if bucket == "" {
		out, err = c.Configs()
	} else {
		out, err = c.Bucket(bucket)
	}

	kingpin.FatalIfError(err, "Unable to read config")
	printYAML(out)
}

func runHistory() {
	cfgs, err := newClient().History()
	kingpin.FatalIfError(err, "Unable to read history")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tUSER\tDATE\tBUCKETS")
	for _, cfg := range cfgs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", cfg.Version, cfg.User, time.Unix(cfg.Date, 0).Format(time.RFC3339), len(cfg.Buckets))
	}
	w.Flush()
}

func runStatus() {
	statuses, err := newClient().Statuses()
	kingpin.FatalIfError(err, "Unable to read bucket statuses")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\tDYNAMIC\tAVAILABLE\tTHRESHOLD\tMAX\tPERMITTING")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%v\t%d\t%d\t%d\t%v\n", s.Name, s.Dynamic, s.Available, s.Threshold, s.Max, s.Permitting)
	}
	w.Flush()
}

func runAdd(file string) {
	kingpin.FatalIfError(newClient().AddBucket(readBucket(file)), "Unable to add bucket")
}

func runUpdate(file string) {
	kingpin.FatalIfError(newClient().UpdateBucket(readBucket(file)), "Unable to update bucket")
}

func runRemove(bucket string) {
	kingpin.FatalIfError(newClient().DeleteBucket(bucket), "Unable to remove bucket %v", bucket)
}

func readBucket(f string) *config.BucketConfig {
	var cfgBytes []byte
	var e error

	if f == "" {
		f = "STDIN"
		cfgBytes, e = ioutil.ReadAll(os.Stdin)
	} else {
		cfgBytes, e = ioutil.ReadFile(f)
	}

	kingpin.FatalIfError(e, "Could not read config from %v", f)

	b := &config.BucketConfig{}
	if json.Unmarshal(cfgBytes, b) != nil {
		kingpin.Fatalf("Config read from %v isn't valid JSON!", f)
	}

	if b.Name == "" {
		kingpin.Fatalf("Bucket config from %v has no name", f)
	}

	return b
}

func printYAML(v interface{}) {
	b, err := yaml.Marshal(v)
	kingpin.FatalIfError(err, "Unable to format output")
	fmt.Print(string(b))
}
