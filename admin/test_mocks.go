// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"errors"

	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/stats"
)

type MockAdministrable struct {
	cfg    *config.ServiceConfig
	errors bool
	// LastUser is the user passed to the most recent change.
	LastUser string
}

func NewMockErrorAdministrable() *MockAdministrable {
	return &MockAdministrable{cfg: config.NewDefaultServiceConfig(), errors: true}
}

func NewMockAdministrable() *MockAdministrable {
	return &MockAdministrable{cfg: config.NewDefaultServiceConfig()}
}

func (m *MockAdministrable) Configs() *config.ServiceConfig {
	return m.cfg
}

func (m *MockAdministrable) UpdateConfig(c *config.ServiceConfig, user string) error {
	m.LastUser = user
	if m.errors {
		return errors.New("UpdateConfig")
	}

	return nil
}

func (m *MockAdministrable) DeleteBucket(name, user string) error {
	m.LastUser = user
	if m.errors {
		return errors.New("DeleteBucket")
	}

	return nil
}

func (m *MockAdministrable) AddBucket(b *config.BucketConfig, user string) error {
	m.LastUser = user
	if m.errors {
		return errors.New("AddBucket")
	}

	return nil
}

func (m *MockAdministrable) UpdateBucket(b *config.BucketConfig, user string) error {
	m.LastUser = user
	if m.errors {
		return errors.New("UpdateBucket")
	}

	return nil
}

func (m *MockAdministrable) BucketStatuses() []*BucketStatus {
	return []*BucketStatus{{Name: "b", Available: 10, Max: 100, Threshold: 20}}
}

func (m *MockAdministrable) TopDynamicHits() []*stats.BucketScore {
	if m.errors {
		return nil
	}

	return []*stats.BucketScore{{Bucket: "hit", Score: 3}}
}

func (m *MockAdministrable) TopDynamicMisses() []*stats.BucketScore {
	if m.errors {
		return nil
	}

	return []*stats.BucketScore{{Bucket: "miss", Score: 2}}
}

func (m *MockAdministrable) DynamicBucketStats(bucket string) *stats.BucketScores {
	if m.errors {
		return nil
	}

	return &stats.BucketScores{Hits: 1, Misses: 2, WaitP50Millis: 1500, WaitP99Millis: 9000}
}

func (m *MockAdministrable) HistoricalConfigs() ([]*config.ServiceConfig, error) {
	if m.errors {
		return nil, errors.New("HistoricalConfigs")
	}

	return []*config.ServiceConfig{m.cfg}, nil
}
