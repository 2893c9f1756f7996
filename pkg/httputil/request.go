package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// maxBodySize caps request bodies at 1 MiB; authorization payloads are tiny.
const maxBodySize = 1 << 20

// ParseJSONOrError decodes the request body into dst, writing a 400
// response and returning false on failure. Unknown fields are rejected so
// typos in client payloads surface immediately.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// GetPathVars extracts the gorilla/mux path variables from the request.
func GetPathVars(r *http.Request) map[string]string {
	return mux.Vars(r)
}
