// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

import (
	"reflect"
	"testing"

	"github.com/square/permitbucket/test/helpers"
)

func testConfig() *ServiceConfig {
	s := &ServiceConfig{
		DefaultBucket: &BucketConfig{Quantity: 300, IntervalMillis: 400, Max: 1234},
		Buckets:       make(map[string]*BucketConfig),
		Version:       92}

	helpers.PanicError(AddBucket(s, &BucketConfig{Name: "xyz", Quantity: 1, IntervalMillis: 2, Max: 3, Threshold: 2}))
	return s
}

func TestMemoryPersistence(t *testing.T) {
	persister := NewMemoryConfigPersister()

	select {
	case <-persister.ConfigChangedWatcher():
		// This is good.
	default:
		t.Fatal("Config channel should not be empty!")
	}

	_, e := persister.ReadPersistedConfig()
	if e == nil {
		t.Fatal("Expecting an error reading before anything was persisted")
	}

	s := testConfig()
	helpers.CheckError(t, persister.PersistAndNotify("", s))

	// Test notification
	select {
	case <-persister.ConfigChangedWatcher():
		// This is good.
	default:
		t.Fatal("Config channel should not be empty!")
	}

	unmarshalled, e := persister.ReadPersistedConfig()
	helpers.CheckError(t, e)

	if !reflect.DeepEqual(s, unmarshalled) {
		t.Fatalf("Configs should be equal! %+v != %+v", s, unmarshalled)
	}

	// Persisted configs are copies.
	s.Buckets["xyz"].Max = 99
	unmarshalled, e = persister.ReadPersistedConfig()
	helpers.CheckError(t, e)
	if unmarshalled.Buckets["xyz"].Max != 3 {
		t.Fatalf("Persisted config was mutated: %+v", unmarshalled.Buckets["xyz"])
	}

	helpers.CheckError(t, persister.PersistAndNotify("", s))
	cfgs, e := persister.ReadHistoricalConfigs()
	helpers.CheckError(t, e)

	if len(cfgs) != 2 {
		t.Fatalf("Historical configs is not correct! %+v", cfgs)
	}
}

func TestNewMemoryConfig(t *testing.T) {
	s := testConfig()
	p := NewMemoryConfig(s)
	defer p.Close()

	<-p.ConfigChangedWatcher()
	read, e := p.ReadPersistedConfig()
	helpers.CheckError(t, e)

	if !reflect.DeepEqual(s, read) {
		t.Fatalf("Configs should be equal! %+v != %+v", s, read)
	}
}
