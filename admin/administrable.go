// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/stats"
)

// Administrable defines something that can be administered via this package.
type Administrable interface {
	Configs() *config.ServiceConfig
	HistoricalConfigs() ([]*config.ServiceConfig, error)

	UpdateConfig(*config.ServiceConfig, string) error

	DeleteBucket(string, string) error
	AddBucket(*config.BucketConfig, string) error
	UpdateBucket(*config.BucketConfig, string) error

	BucketStatuses() []*BucketStatus

	TopDynamicHits() []*stats.BucketScore
	TopDynamicMisses() []*stats.BucketScore
	DynamicBucketStats(string) *stats.BucketScores
}

// BucketStatus is a point-in-time view of a live bucket.
type BucketStatus struct {
	Name      string `json:"name"`
	Dynamic   bool   `json:"dynamic"`
	Available uint64 `json:"available"`
	Max       uint64 `json:"max"`
	Threshold uint64 `json:"threshold"`
	// Permitting is true when the bucket would grant a permit right now.
	Permitting bool `json:"permitting"`
}
