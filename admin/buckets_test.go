// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/square/permitbucket/config"
)

func TestBucketsGetBucketNotFound(t *testing.T) {
	jsonResponse := make(map[string]string)
	res := doRequest(t, NewMockAdministrable(), &jsonResponse, "GET", "/api/buckets/bucket", "")

	if jsonResponse["description"] != "Unable to locate bucket bucket" {
		t.Errorf("Received \"%s\" from %+v instead of not found", jsonResponse["description"], jsonResponse)
	}

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestBucketsGet(t *testing.T) {
	a := NewMockAdministrable()
	bucket := config.NewDefaultBucketConfig("bucket")
	bucket.Threshold = 30
	config.AddBucket(a.Configs(), bucket)

	configResponse := &config.BucketConfig{}
	doRequest(t, a, configResponse, "GET", "/api/buckets/bucket", "")

	assert.Equal(t, bucket, configResponse)
}

func TestBucketsGetDefault(t *testing.T) {
	a := NewMockAdministrable()
	config.SetDefaultBucket(a.Configs(), config.NewDefaultBucketConfig(""))

	configResponse := &config.BucketConfig{}
	doRequest(t, a, configResponse, "GET", "/api/buckets/"+config.DefaultBucketName, "")

	assert.Equal(t, config.DefaultBucketName, configResponse.Name)
}

func TestBucketsPost(t *testing.T) {
	a := NewMockAdministrable()
	jsonResponse := make(map[string]string)
	doRequest(t, a, &jsonResponse, "POST", "/api/buckets/newbucket", `{"threshold": 10}`)

	if len(jsonResponse) != 0 {
		t.Errorf("Received non-empty response \"%+v\"", jsonResponse)
	}

	assert.Equal(t, "tester", a.LastUser)
}

func TestBucketsPostNameMismatch(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockAdministrable(), &jsonResponse, "POST", "/api/buckets/newbucket", `{"name": "other"}`)

	if jsonResponse["description"] != "Bucket name other doesn't match newbucket" {
		t.Errorf("Received \"%s\" from %+v", jsonResponse["description"], jsonResponse)
	}
}

func TestBucketsPostError(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "POST", "/api/buckets/newbucket", "")

	if jsonResponse["description"] != "AddBucket" {
		t.Errorf("Received \"%s\" from %+v instead of AddBucket", jsonResponse["description"], jsonResponse)
	}
}

func TestBucketsPut(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockAdministrable(), &jsonResponse, "PUT", "/api/buckets/newbucket", "")

	if len(jsonResponse) != 0 {
		t.Errorf("Received non-empty response \"%+v\"", jsonResponse)
	}
}

func TestBucketsPutError(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "PUT", "/api/buckets/newbucket", "")

	if jsonResponse["description"] != "UpdateBucket" {
		t.Errorf("Received \"%s\" from %+v instead of UpdateBucket", jsonResponse["description"], jsonResponse)
	}
}

func TestBucketsDeleteError(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockErrorAdministrable(), &jsonResponse, "DELETE", "/api/buckets/bucket", "")

	if jsonResponse["description"] != "DeleteBucket" {
		t.Errorf("Received \"%s\" from %+v instead of DeleteBucket", jsonResponse["description"], jsonResponse)
	}
}

func TestBucketsDelete(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockAdministrable(), &jsonResponse, "DELETE", "/api/buckets/bucket", "")

	if len(jsonResponse) != 0 {
		t.Errorf("Received non-empty response \"%+v\"", jsonResponse)
	}
}

func TestBucketsUnknownMethod(t *testing.T) {
	jsonResponse := make(map[string]string)
	doRequest(t, NewMockAdministrable(), &jsonResponse, "PATCH", "/api/buckets/bucket", "")

	assert.Equal(t, "Unknown method PATCH", jsonResponse["description"])
}

func TestBucketStatuses(t *testing.T) {
	response := &bucketStatusResponse{}
	doRequest(t, NewMockAdministrable(), response, "GET", "/api/buckets", "")

	if assert.Len(t, response.Buckets, 1) {
		assert.Equal(t, "b", response.Buckets[0].Name)
		assert.Equal(t, uint64(20), response.Buckets[0].Threshold)
	}
}
