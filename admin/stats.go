// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/square/permitbucket/stats"
)

const noStatsListener = "No stats listener configured"

type statsAPIHandler struct {
	a Administrable
}

func newStatsAPIHandler(admin Administrable) (a *statsAPIHandler) {
	return &statsAPIHandler{a: admin}
}

func (a *statsAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		writeJSONError(w, &httpError{"Unknown method " + r.Method, http.StatusBadRequest})
		return
	}

	bucket := mux.Vars(r)["name"]
	stat := a.a.DynamicBucketStats(bucket)

	if stat == nil {
		writeJSONError(w, &httpError{noStatsListener, http.StatusBadRequest})
		return
	}

	writeJSON(w, map[string]*stats.BucketScores{bucket: stat})
}

type topStatsAPIHandler struct {
	a Administrable
}

type topStats struct {
	List   string               `json:"list"`
	Scores []*stats.BucketScore `json:"scores"`
}

func newTopStatsAPIHandler(admin Administrable) (a *topStatsAPIHandler) {
	return &topStatsAPIHandler{a: admin}
}

func (a *topStatsAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		writeJSONError(w, &httpError{"Unknown method " + r.Method, http.StatusBadRequest})
		return
	}

	list := mux.Vars(r)["list"]

	var scores []*stats.BucketScore
	if list == "hits" {
		scores = a.a.TopDynamicHits()
	} else {
		scores = a.a.TopDynamicMisses()
	}

	if scores == nil {
		writeJSONError(w, &httpError{noStatsListener, http.StatusBadRequest})
		return
	}

	writeJSON(w, &topStats{list, scores})
}
