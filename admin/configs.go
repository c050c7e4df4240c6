// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"net/http"

	"github.com/square/permitbucket/config"
)

type configsAPIHandler struct {
	a Administrable
}

func newConfigsAPIHandler(admin Administrable) (a *configsAPIHandler) {
	return &configsAPIHandler{a: admin}
}

func (a *configsAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		writeJSON(w, a.a.Configs())
	case "POST":
		c := &config.ServiceConfig{}
		if e := unmarshalJSON(r.Body, c); e != nil {
			writeJSONError(w, &httpError{e.Error(), http.StatusBadRequest})
			return
		}

		if e := a.a.UpdateConfig(c, getUsername(r)); e != nil {
			writeJSONError(w, &httpError{e.Error(), http.StatusBadRequest})
		} else {
			writeJSONOk(w)
		}
	default:
		writeJSONError(w, &httpError{"Unknown method " + r.Method, http.StatusBadRequest})
	}
}

type historyAPIHandler struct {
	a Administrable
}

func newHistoryAPIHandler(admin Administrable) (a *historyAPIHandler) {
	return &historyAPIHandler{a: admin}
}

type configsResponse struct {
	Configs []*config.ServiceConfig `json:"configs"`
}

func (a *historyAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		writeJSONError(w, &httpError{"Unknown method " + r.Method, http.StatusBadRequest})
		return
	}

	configs, err := a.a.HistoricalConfigs()

	if err != nil {
		writeJSONError(w, &httpError{"Error reading configs " + err.Error(), http.StatusInternalServerError})
	} else {
		writeJSON(w, &configsResponse{configs})
	}
}
