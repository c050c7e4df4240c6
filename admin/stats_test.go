// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/square/permitbucket/stats"
)

func TestStatsErrors(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockAdministrable(), &jsonResponse, "DELETE", "/api/stats/dyn", "")

	if jsonResponse["description"] != "Unknown method DELETE" {
		t.Errorf("Received \"%s\" from %+v instead of \"Unknown method DELETE\"",
			jsonResponse["description"], jsonResponse)
	}

	jsonResponse = make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "GET", "/api/stats/dyn", "")

	if jsonResponse["description"] != noStatsListener {
		t.Errorf("Received \"%s\" from %+v instead of %q", jsonResponse["description"], jsonResponse, noStatsListener)
	}

	jsonResponse = make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "GET", "/api/stats/top/hits", "")

	if jsonResponse["description"] != noStatsListener {
		t.Errorf("Received \"%s\" from %+v instead of %q", jsonResponse["description"], jsonResponse, noStatsListener)
	}
}

func TestStatsGet(t *testing.T) {
	response := make(map[string]*stats.BucketScores)
	doRequest(t, NewMockAdministrable(), &response, "GET", "/api/stats/dyn", "")

	assert.Equal(t, &stats.BucketScores{Hits: 1, Misses: 2, WaitP50Millis: 1500, WaitP99Millis: 9000}, response["dyn"])
}

func TestStatsTop(t *testing.T) {
	hits := &topStats{}
	doRequest(t, NewMockAdministrable(), hits, "GET", "/api/stats/top/hits", "")

	assert.Equal(t, "hits", hits.List)
	assert.Equal(t, []*stats.BucketScore{{Bucket: "hit", Score: 3}}, hits.Scores)

	misses := &topStats{}
	doRequest(t, NewMockAdministrable(), misses, "GET", "/api/stats/top/misses", "")

	assert.Equal(t, "misses", misses.List)
	assert.Equal(t, []*stats.BucketScore{{Bucket: "miss", Score: 2}}, misses.Scores)
}
