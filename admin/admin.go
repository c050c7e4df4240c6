// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package admin serves a REST API for inspecting and changing a running permitbucket service.
package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/square/permitbucket/logging"
)

// UserHeader names the request header carrying the user making a change. Changes from requests
// without it are recorded against anonymousUser.
const (
	UserHeader    = "X-Permitbucket-User"
	anonymousUser = "anonymous"
)

type httpError struct {
	message string
	status  int
}

// ServeAdminConsole mounts the REST endpoints for an Administrable under /api/ on router.
func ServeAdminConsole(a Administrable, router *mux.Router) {
	logging.Info("Serving admin console.")

	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/configs", newConfigsAPIHandler(a))
	api.Handle("/configs/history", newHistoryAPIHandler(a))
	api.Handle("/buckets", newBucketStatusAPIHandler(a))
	api.Handle("/buckets/{name}", newBucketsAPIHandler(a))
	api.Handle("/stats/top/{list:hits|misses}", newTopStatsAPIHandler(a))
	api.Handle("/stats/{name}", newStatsAPIHandler(a))
}

// NewRouter returns a router serving only the admin console.
func NewRouter(a Administrable) *mux.Router {
	router := mux.NewRouter()
	ServeAdminConsole(a, router)
	return router
}

func getUsername(r *http.Request) string {
	if user := r.Header.Get(UserHeader); user != "" {
		return user
	}

	return anonymousUser
}
