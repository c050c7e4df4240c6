// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package admin

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/square/permitbucket/logging"
)

var emptyJSONResponse []byte

func init() {
	b, e := json.Marshal(make(map[string]string))

	if e != nil {
		logging.Fatalf("Error setting up empty JSON response! %+v", e)
	}

	emptyJSONResponse = b
}

func writeJSONError(w http.ResponseWriter, err *httpError) {
	response := make(map[string]string)
	response["error"] = http.StatusText(err.status)
	response["description"] = err.message

	logging.Debugf("Response error: %+v", response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.status)
	writeJSON(w, response)
}

func writeJSONOk(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if _, e := w.Write(emptyJSONResponse); e != nil {
		logging.Warnf("Error writing JSON! %+v", e)
	}
}

func writeJSON(w http.ResponseWriter, object interface{}) {
	b, e := json.Marshal(object)

	if e != nil {
		writeJSONError(w, &httpError{e.Error(), http.StatusInternalServerError})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, e = w.Write(b)

	if e != nil {
		logging.Warnf("Error writing JSON! %+v", e)
	}
}

func unmarshalJSON(r io.Reader, object interface{}) error {
	bytes, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}

	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, object)
}
