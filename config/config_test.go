// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/square/permitbucket/test/helpers"
)

const cfgYaml = `buckets:
  one:
    quantity: 10
    interval_millis: 10000
    max: 200
    threshold: 100
    max_idle_millis: 20000
  with_defaults:
    max: 300
  cold:
    quantity: 5
    interval_millis: 1000
    max: 50
    initial: 0
dynamic_bucket_template:
  quantity: 999
  interval_millis: 8888
  max: 1000
  max_idle_millis: 30000
max_dynamic_buckets: 50
version: 7
`

func uint64p(v uint64) *uint64 {
	return &v
}

func TestConfig(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(cfgYaml))
	helpers.CheckError(t, err)

	if cfg.DefaultBucket != nil {
		t.Fatal("Did not configure a default bucket")
	}

	if len(cfg.Buckets) != 3 {
		t.Fatalf("Expected 3 buckets; was %v", len(cfg.Buckets))
	}

	assertBucket(t, cfg.Buckets["one"], &BucketConfig{
		Name: "one", Quantity: 10, IntervalMillis: 10000, Max: 200, Threshold: 100, MaxIdleMillis: 20000})
	assertBucket(t, cfg.Buckets["with_defaults"], &BucketConfig{
		Name: "with_defaults", Quantity: 50, IntervalMillis: 1000, Max: 300, MaxIdleMillis: -1})
	assertBucket(t, cfg.Buckets["cold"], &BucketConfig{
		Name: "cold", Quantity: 5, IntervalMillis: 1000, Max: 50, Initial: uint64p(0), MaxIdleMillis: -1})
	assertBucket(t, cfg.DynamicBucketTemplate, &BucketConfig{
		Name: DynamicBucketTemplateName, Quantity: 999, IntervalMillis: 8888, Max: 1000, MaxIdleMillis: 30000})

	if cfg.MaxDynamicBuckets != 50 || cfg.Version != 7 {
		t.Fatalf("Unexpected service settings %v", cfg)
	}

	helpers.CheckError(t, Validate(cfg))
}

func assertBucket(t *testing.T, b, expected *BucketConfig) {
	t.Helper()
	if diff := cmp.Diff(expected, b); diff != "" {
		t.Fatalf("Bucket config mismatch (-want +got):\n%s", diff)
	}
}

func TestReadConfigBadYaml(t *testing.T) {
	_, err := ReadConfig(strings.NewReader("buckets: [this is not a map"))
	require.Error(t, err)
}

func TestReadConfigFromMissingFile(t *testing.T) {
	_, err := ReadConfigFromFile("/nonexistent/permitbucket.yaml")
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(cfgYaml))
	require.NoError(t, err)

	r, err := Marshal(cfg)
	require.NoError(t, err)

	unmarshalled, err := Unmarshal(r)
	require.NoError(t, err)

	if diff := cmp.Diff(cfg, unmarshalled); diff != "" {
		t.Fatalf("Config changed after a round trip (-want +got):\n%s", diff)
	}
}

func TestHashConfig(t *testing.T) {
	c1, err := ReadConfig(strings.NewReader(cfgYaml))
	require.NoError(t, err)
	c2 := CloneConfig(c1)

	assert.Equal(t, HashConfig(c1), HashConfig(c2))

	c2.Buckets["one"].Max = 201
	assert.NotEqual(t, HashConfig(c1), HashConfig(c2))
}

func TestCloneIsDeep(t *testing.T) {
	c1, err := ReadConfig(strings.NewReader(cfgYaml))
	require.NoError(t, err)
	c2 := CloneConfig(c1)

	*c2.Buckets["cold"].Initial = 7
	c2.DynamicBucketTemplate.Max = 1
	delete(c2.Buckets, "one")

	assert.EqualValues(t, 0, *c1.Buckets["cold"].Initial)
	assert.EqualValues(t, 1000, c1.DynamicBucketTemplate.Max)
	assert.Contains(t, c1.Buckets, "one")
}

func TestDifferentBucketConfigs(t *testing.T) {
	b1 := NewDefaultBucketConfig("b")
	b2 := CloneBucketConfig(b1)

	assert.False(t, DifferentBucketConfigs(nil, nil))
	assert.True(t, DifferentBucketConfigs(b1, nil))
	assert.True(t, DifferentBucketConfigs(nil, b1))
	assert.False(t, DifferentBucketConfigs(b1, b2))

	b2.Threshold = 1
	assert.True(t, DifferentBucketConfigs(b1, b2))

	b2 = CloneBucketConfig(b1)
	b2.Initial = uint64p(3)
	assert.True(t, DifferentBucketConfigs(b1, b2))

	b1.Initial = uint64p(3)
	assert.False(t, DifferentBucketConfigs(b1, b2))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ServiceConfig)
	}{
		{"default and dynamic", func(c *ServiceConfig) { SetDefaultBucket(c, NewDefaultBucketConfig("")) }},
		{"negative max dynamic", func(c *ServiceConfig) { c.MaxDynamicBuckets = -1 }},
		{"threshold above max", func(c *ServiceConfig) { c.Buckets["one"].Threshold = 201 }},
		{"initial above max", func(c *ServiceConfig) { c.Buckets["cold"].Initial = uint64p(51) }},
		{"zero interval", func(c *ServiceConfig) { c.Buckets["one"].IntervalMillis = -5 }},
		{"zero quantity", func(c *ServiceConfig) { c.DynamicBucketTemplate.Quantity = 0 }},
		{"zero max", func(c *ServiceConfig) { c.Buckets["with_defaults"].Max = 0 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := ReadConfig(strings.NewReader(cfgYaml))
			require.NoError(t, err)
			c.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"buckets": {"x": {"quantity": 1, "interval_millis": 2, "max": 3}}, "version": 4}`))
	require.NoError(t, err)
	assert.EqualValues(t, 4, cfg.Version)
	assert.EqualValues(t, 3, cfg.Buckets["x"].Max)

	b, err := BucketFromJSON([]byte(`{"name": "y", "threshold": 9, "initial": 0}`))
	require.NoError(t, err)
	assert.Equal(t, "y", b.Name)
	assert.EqualValues(t, 9, b.Threshold)
	require.NotNil(t, b.Initial)

	_, err = FromJSON([]byte("{"))
	require.Error(t, err)
}

func TestBucketNames(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(cfgYaml))
	require.NoError(t, err)
	assert.Equal(t, []string{"cold", "one", "with_defaults"}, BucketNames(cfg))
}
