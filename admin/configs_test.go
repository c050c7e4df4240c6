// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"net/http"
	"testing"

	"github.com/square/permitbucket/config"
)

func TestConfigsGet(t *testing.T) {
	a := NewMockAdministrable()
	config.AddBucket(a.Configs(), config.NewDefaultBucketConfig("api"))

	configResponse := &config.ServiceConfig{}
	doRequest(t, a, configResponse, "GET", "/api/configs", "")

	if configResponse.Buckets["api"] == nil {
		t.Errorf("Received invalid configs response: %+v", configResponse)
	}
}

func TestConfigsPost(t *testing.T) {
	a := NewMockAdministrable()

	jsonResponse := make(map[string]string)
	doRequest(t, a, &jsonResponse, "POST", "/api/configs", `{"buckets": {}}`)

	if len(jsonResponse) != 0 {
		t.Errorf("Received non-empty response \"%+v\"", jsonResponse)
	}

	if a.LastUser != "tester" {
		t.Errorf("Expected change by tester, was %v", a.LastUser)
	}
}

func TestConfigsPostBadJSON(t *testing.T) {
	jsonResponse := make(map[string]string)
	res := doRequest(t, NewMockAdministrable(), &jsonResponse, "POST", "/api/configs", "{")

	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected bad request, got %v", res.StatusCode)
	}
}

func TestConfigsPostError(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "POST", "/api/configs", "{}")

	if jsonResponse["description"] != "UpdateConfig" {
		t.Errorf("Received \"%s\" from %+v instead of UpdateConfig", jsonResponse["description"], jsonResponse)
	}
}

func TestConfigsHistory(t *testing.T) {
	configResponse := &configsResponse{}
	doRequest(t, NewMockAdministrable(), configResponse, "GET", "/api/configs/history", "")

	if len(configResponse.Configs) != 1 {
		t.Errorf("Received invalid configs response: %+v", configResponse)
	}
}

func TestConfigsHistoryError(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "GET", "/api/configs/history", "")

	if jsonResponse["description"] != "Error reading configs HistoricalConfigs" {
		t.Errorf("Received \"%s\" from %+v instead of \"Error reading configs HistoricalConfigs\"",
			jsonResponse["description"], jsonResponse)
	}
}

func TestConfigsHistoryPut(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockAdministrable(), &jsonResponse, "PUT", "/api/configs/history", "")

	if jsonResponse["description"] != "Unknown method PUT" {
		t.Errorf("Received \"%s\" from %+v instead of \"Unknown method PUT\"",
			jsonResponse["description"], jsonResponse)
	}
}
