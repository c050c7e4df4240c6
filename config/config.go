// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package config implements configs for permitbucket services
package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/square/permitbucket/logging"
)

const (
	DefaultBucketName         = "___DEFAULT_BUCKET___"
	DynamicBucketTemplateName = "___DYNAMIC_BUCKET_TPL___"
	initialVersion            = 0
	initialHash               = "___INITIAL_HASH___"
)

// BucketConfig describes a single token bucket. Threshold is 0 for buckets that always grant
// permits. Initial is nil to seed the bucket with threshold plus one refill, capped at Max.
type BucketConfig struct {
	Name           string  `yaml:"name,omitempty" json:"name,omitempty"`
	Quantity       uint64  `yaml:"quantity" json:"quantity"`
	IntervalMillis int64   `yaml:"interval_millis" json:"interval_millis"`
	Max            uint64  `yaml:"max" json:"max"`
	Threshold      uint64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Initial        *uint64 `yaml:"initial,omitempty" json:"initial,omitempty"`
	MaxIdleMillis  int64   `yaml:"max_idle_millis" json:"max_idle_millis"`
}

func (b *BucketConfig) String() string {
	initial := "auto"
	if b.Initial != nil {
		initial = fmt.Sprint(*b.Initial)
	}

	return fmt.Sprintf("BucketConfig{name: %v, quantity: %v, interval: %vms, max: %v, threshold: %v, initial: %v, maxIdle: %vms}",
		b.Name, b.Quantity, b.IntervalMillis, b.Max, b.Threshold, initial, b.MaxIdleMillis)
}

// Interval returns IntervalMillis as a time.Duration.
func (b *BucketConfig) Interval() time.Duration {
	return time.Duration(b.IntervalMillis) * time.Millisecond
}

// MaxIdle returns MaxIdleMillis as a time.Duration; it is not positive for buckets that are never
// reaped.
func (b *BucketConfig) MaxIdle() time.Duration {
	return time.Duration(b.MaxIdleMillis) * time.Millisecond
}

// ServiceConfig is the full, versioned set of buckets a service hands out permits for. Lookups for
// names not in Buckets fall back to DefaultBucket, or create a bucket from DynamicBucketTemplate.
// A config may have one or the other, but not both.
type ServiceConfig struct {
	Buckets               map[string]*BucketConfig `yaml:"buckets,omitempty" json:"buckets,omitempty"`
	DefaultBucket         *BucketConfig            `yaml:"default_bucket,omitempty" json:"default_bucket,omitempty"`
	DynamicBucketTemplate *BucketConfig            `yaml:"dynamic_bucket_template,omitempty" json:"dynamic_bucket_template,omitempty"`
	MaxDynamicBuckets     int                      `yaml:"max_dynamic_buckets,omitempty" json:"max_dynamic_buckets,omitempty"`
	Version               int32                    `yaml:"version" json:"version"`
	User                  string                   `yaml:"user,omitempty" json:"user,omitempty"`
	Date                  int64                    `yaml:"date,omitempty" json:"date,omitempty"`
}

func (s *ServiceConfig) String() string {
	return fmt.Sprintf("ServiceConfig{version: %v, user: %v, buckets: %v, default: %v, dynamic: %v, maxDynamic: %v}",
		s.Version, s.User, BucketNames(s), s.DefaultBucket != nil, s.DynamicBucketTemplate != nil, s.MaxDynamicBuckets)
}

func ApplyDefaults(sc *ServiceConfig) {
	// Ensure the bucket map exists.
	if sc.Buckets == nil {
		sc.Buckets = make(map[string]*BucketConfig)
	}

	if sc.DefaultBucket != nil {
		ApplyBucketDefaults(sc.DefaultBucket)
		sc.DefaultBucket.Name = DefaultBucketName
	}

	if sc.DynamicBucketTemplate != nil {
		ApplyBucketDefaults(sc.DynamicBucketTemplate)
		sc.DynamicBucketTemplate.Name = DynamicBucketTemplateName
	}

	for n, b := range sc.Buckets {
		ApplyBucketDefaults(b)
		b.Name = n
	}
}

func ApplyBucketDefaults(b *BucketConfig) {
	if b.Quantity == 0 {
		b.Quantity = 50
	}

	if b.IntervalMillis == 0 {
		b.IntervalMillis = 1000
	}

	if b.Max == 0 {
		b.Max = 100
	}

	if b.MaxIdleMillis == 0 {
		b.MaxIdleMillis = -1
	}
}

// BucketNames returns the names of all explicitly configured buckets, sorted.
func BucketNames(sc *ServiceConfig) []string {
	names := make([]string, 0, len(sc.Buckets))
	for name := range sc.Buckets {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Validate checks that every bucket in sc can be built.
func Validate(sc *ServiceConfig) error {
	if sc.DefaultBucket != nil && sc.DynamicBucketTemplate != nil {
		return errors.New("a config is not allowed to have a default bucket as well as allow dynamic buckets")
	}

	if sc.MaxDynamicBuckets < 0 {
		return errors.Errorf("max_dynamic_buckets cannot be negative, was %v", sc.MaxDynamicBuckets)
	}

	if sc.DefaultBucket != nil {
		if err := ValidateBucket(sc.DefaultBucket); err != nil {
			return errors.Wrap(err, "default bucket")
		}
	}

	if sc.DynamicBucketTemplate != nil {
		if err := ValidateBucket(sc.DynamicBucketTemplate); err != nil {
			return errors.Wrap(err, "dynamic bucket template")
		}
	}

	for _, name := range BucketNames(sc) {
		if err := ValidateBucket(sc.Buckets[name]); err != nil {
			return errors.Wrapf(err, "bucket %v", name)
		}
	}

	return nil
}

func ValidateBucket(b *BucketConfig) error {
	switch {
	case b.Quantity == 0:
		return errors.New("quantity must be greater than 0")
	case b.IntervalMillis <= 0:
		return errors.New("interval_millis must be greater than 0")
	case b.Max == 0:
		return errors.New("max must be greater than 0")
	case b.Threshold > b.Max:
		return errors.Errorf("threshold %v exceeds max %v", b.Threshold, b.Max)
	case b.Initial != nil && *b.Initial > b.Max:
		return errors.Errorf("initial %v exceeds max %v", *b.Initial, b.Max)
	}

	return nil
}

func ReadConfigFromFile(filename string) (*ServiceConfig, error) {
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %v", filename)
	}

	return readConfigFromBytes(bytes)
}

func ReadConfig(yamlStream io.Reader) (*ServiceConfig, error) {
	bytes, err := ioutil.ReadAll(yamlStream)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config")
	}

	return readConfigFromBytes(bytes)
}

func readConfigFromBytes(bytes []byte) (*ServiceConfig, error) {
	cfg := NewDefaultServiceConfig()
	if err := yaml.Unmarshal(bytes, cfg); err != nil {
		return nil, errors.Wrap(err, "unable to read YAML")
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

func NewDefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Buckets: make(map[string]*BucketConfig),
		User:    "permitbucket",
		Date:    time.Now().Unix(),
		Version: initialVersion}
}

func NewDefaultBucketConfig(name string) *BucketConfig {
	return &BucketConfig{
		Quantity:       50,
		IntervalMillis: 1000,
		Max:            100,
		MaxIdleMillis:  -1,
		Name:           name}
}

func FromJSON(j []byte) (*ServiceConfig, error) {
	p := &ServiceConfig{}
	if e := json.Unmarshal(j, p); e != nil {
		return nil, e
	}

	return p, nil
}

func BucketFromJSON(j []byte) (*BucketConfig, error) {
	b := &BucketConfig{}
	if e := json.Unmarshal(j, b); e != nil {
		return nil, e
	}

	return b, nil
}

// NewMemoryConfig returns an in-memory persister already holding cfg.
func NewMemoryConfig(cfg *ServiceConfig) ConfigPersister {
	persister := NewMemoryConfigPersister()
	if err := persister.PersistAndNotify(initialHash, cfg); err != nil {
		logging.Fatalf("Unable to persist initial configuration: %v", err)
	}

	return persister
}

// Marshal serializes cfg in the same YAML format ReadConfig accepts.
func Marshal(cfg *ServiceConfig) (io.Reader, error) {
	b, e := MarshalBytes(cfg)
	if e != nil {
		return nil, e
	}

	return bytes.NewReader(b), nil
}

func MarshalBytes(cfg *ServiceConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func Unmarshal(r io.Reader) (*ServiceConfig, error) {
	b, e := ioutil.ReadAll(r)
	if e != nil {
		return nil, e
	}

	return UnmarshalBytes(b)
}

func UnmarshalBytes(b []byte) (*ServiceConfig, error) {
	p := &ServiceConfig{}
	if e := yaml.Unmarshal(b, p); e != nil {
		return nil, errors.Wrap(e, "unable to unmarshal config")
	}

	if p.Buckets == nil {
		p.Buckets = make(map[string]*BucketConfig)
	}

	return p, nil
}

// HashConfig returns a stable digest of cfg's marshalled form.
func HashConfig(cfg *ServiceConfig) string {
	b, e := MarshalBytes(cfg)
	if e != nil {
		logging.Warnf("Unable to marshal config for hashing: %v", e)
		return ""
	}

	return HashConfigBytes(b)
}

func HashConfigBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func AddBucket(s *ServiceConfig, b *BucketConfig) error {
	if b.Name == "" {
		return errors.New("bucket name cannot be nil or empty")
	}

	if s.Buckets == nil {
		s.Buckets = make(map[string]*BucketConfig)
	}

	s.Buckets[b.Name] = b
	return nil
}

func SetDefaultBucket(s *ServiceConfig, b *BucketConfig) {
	b.Name = DefaultBucketName
	s.DefaultBucket = b
}

func SetDynamicBucketTemplate(s *ServiceConfig, b *BucketConfig) {
	b.Name = DynamicBucketTemplateName
	s.DynamicBucketTemplate = b
}

func DifferentBucketConfigs(c1, c2 *BucketConfig) bool {
	if c1 == nil && c2 == nil {
		// Both are nil - so not different
		return false
	}

	if c1 == nil || c2 == nil {
		// One of them is NOT nil!
		return true
	}

	return c1.Name != c2.Name ||
		c1.Quantity != c2.Quantity ||
		c1.IntervalMillis != c2.IntervalMillis ||
		c1.Max != c2.Max ||
		c1.Threshold != c2.Threshold ||
		differentInitial(c1.Initial, c2.Initial) ||
		c1.MaxIdleMillis != c2.MaxIdleMillis
}

func differentInitial(i1, i2 *uint64) bool {
	if i1 == nil || i2 == nil {
		return i1 != i2
	}

	return *i1 != *i2
}

func CloneBucketConfig(b *BucketConfig) *BucketConfig {
	if b == nil {
		return nil
	}

	c := *b
	if b.Initial != nil {
		initial := *b.Initial
		c.Initial = &initial
	}

	return &c
}

func CloneConfig(cfg *ServiceConfig) *ServiceConfig {
	if cfg == nil {
		return nil
	}

	c := *cfg
	c.DefaultBucket = CloneBucketConfig(cfg.DefaultBucket)
	c.DynamicBucketTemplate = CloneBucketConfig(cfg.DynamicBucketTemplate)
	c.Buckets = make(map[string]*BucketConfig, len(cfg.Buckets))
	for name, b := range cfg.Buckets {
		c.Buckets[name] = CloneBucketConfig(b)
	}

	return &c
}

func CloneConfigs(cfgs map[string]*ServiceConfig) []*ServiceConfig {
	cloned := make([]*ServiceConfig, 0, len(cfgs))

	for _, v := range cfgs {
		cloned = append(cloned, CloneConfig(v))
	}

	return cloned
}
