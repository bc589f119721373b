package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AndyMelnik/iot-query-probe-v2/query"
)

// maxBodySize bounds JSON request bodies. Export and report payloads carry
// whole result sets, so the limit is generous.
const maxBodySize = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeErrorCode(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

// queryStatus maps an executor failure to its HTTP status.
func queryStatus(kind query.Kind) int {
	switch kind {
	case query.KindUnauthorized:
		return http.StatusUnauthorized
	case query.KindPolicyViolation:
		return http.StatusForbidden
	case query.KindTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadRequest
	}
}

// writeQueryError converts an executor failure into the error body. Every
// failure carries a code; only those that reached the database report
// elapsed time.
func writeQueryError(w http.ResponseWriter, err error) {
	var qerr *query.Error
	if !errors.As(err, &qerr) {
		writeErrorCode(w, http.StatusBadRequest, err.Error(), query.CodeQueryError)
		return
	}
	resp := ErrorResponse{Error: qerr.Message, Code: qerr.Code}
	if qerr.Executed() {
		ms := qerr.Elapsed.Milliseconds()
		resp.ExecutionTimeMs = &ms
	}
	writeJSON(w, queryStatus(qerr.Kind), resp)
}
