package api

import (
	"encoding/json"
	"net/http"
)

// Response is what the pipeline hands back to the HTTP engine collaborator:
// a status code, headers, and an encodable body.
type Response struct {
	Status  int
	Headers http.Header
	Body    any
}

// Header sets a response header, allocating the map on first use.
func (r *Response) Header(key, value string) {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	r.Headers.Set(key, value)
}

// Write encodes the response onto an http.ResponseWriter. Bodies are
// JSON-encoded; a nil body writes the status line only.
func (r Response) Write(w http.ResponseWriter) {
	for key, values := range r.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	if r.Body == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
	json.NewEncoder(w).Encode(r.Body)
}
