// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package permitbucket

import (
	"sort"

	"github.com/square/permitbucket/admin"
	"github.com/square/permitbucket/config"
)

// Implements an interface for sorting server configs, newest first

type sortedConfigs []*config.ServiceConfig

func (c sortedConfigs) Less(i, j int) bool {
	if c[i].Date == c[j].Date {
		return c[i].Version > c[j].Version
	}

	return c[i].Date > c[j].Date
}

func (c sortedConfigs) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}

func (c sortedConfigs) Len() int {
	return len(c)
}

func sortConfigsDesc(cfgs []*config.ServiceConfig) []*config.ServiceConfig {
	sorted := sortedConfigs(cfgs)
	sort.Sort(sorted)
	return sorted
}

type sortedStatuses []*admin.BucketStatus

func (s sortedStatuses) Less(i, j int) bool {
	return s[i].Name < s[j].Name
}

func (s sortedStatuses) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sortedStatuses) Len() int {
	return len(s)
}
