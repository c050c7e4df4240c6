// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/square/permitbucket/config"
)

type bucketsAPIHandler struct {
	a Administrable
}

func newBucketsAPIHandler(admin Administrable) (a *bucketsAPIHandler) {
	return &bucketsAPIHandler{a: admin}
}

func (a *bucketsAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["name"]
	user := getUsername(r)

	switch r.Method {
	case "GET":
		err := writeBucket(a, w, bucket)

		if err != nil {
			writeJSONError(w, err)
		}
	case "DELETE":
		err := a.a.DeleteBucket(bucket, user)

		if err != nil {
			writeJSONError(w, &httpError{err.Error(), http.StatusBadRequest})
		} else {
			writeJSONOk(w)
		}
	case "PUT":
		changeBucket(w, r, bucket, func(c *config.BucketConfig) error {
			return a.a.UpdateBucket(c, user)
		})
	case "POST":
		changeBucket(w, r, bucket, func(c *config.BucketConfig) error {
			return a.a.AddBucket(c, user)
		})
	default:
		writeJSONError(w, &httpError{"Unknown method " + r.Method, http.StatusBadRequest})
	}
}

func changeBucket(w http.ResponseWriter, r *http.Request, bucket string, updater func(*config.BucketConfig) error) {
	c, e := getBucketConfig(r.Body)

	if e != nil {
		writeJSONError(w, &httpError{e.Error(), http.StatusBadRequest})
		return
	}

	if c.Name == "" {
		c.Name = bucket
	}

	if c.Name != bucket {
		writeJSONError(w, &httpError{"Bucket name " + c.Name + " doesn't match " + bucket, http.StatusBadRequest})
		return
	}

	e = updater(c)

	if e != nil {
		writeJSONError(w, &httpError{e.Error(), http.StatusBadRequest})
	} else {
		writeJSONOk(w)
	}
}

func getBucketConfig(r io.Reader) (*config.BucketConfig, error) {
	c := &config.BucketConfig{}
	err := unmarshalJSON(r, c)
	if err == nil {
		config.ApplyBucketDefaults(c)
	}
	return c, err
}

func writeBucket(a *bucketsAPIHandler, w http.ResponseWriter, bucket string) *httpError {
	bucketConfig := config.BucketByName(a.a.Configs(), bucket)

	if bucketConfig == nil {
		return &httpError{"Unable to locate bucket " + bucket, http.StatusNotFound}
	}

	writeJSON(w, bucketConfig)
	return nil
}

type bucketStatusAPIHandler struct {
	a Administrable
}

func newBucketStatusAPIHandler(admin Administrable) (a *bucketStatusAPIHandler) {
	return &bucketStatusAPIHandler{a: admin}
}

type bucketStatusResponse struct {
	Buckets []*BucketStatus `json:"buckets"`
}

func (a *bucketStatusAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		writeJSONError(w, &httpError{"Unknown method " + r.Method, http.StatusBadRequest})
		return
	}

	writeJSON(w, &bucketStatusResponse{a.a.BucketStatuses()})
}
