package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/scanner"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// writeJSON encodes v as JSON with the given status code. Encoding errors are
// logged since the header is already sent.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// writeError maps err to a status code and writes it as JSON
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("request failed: %v", err)
	}
	writeJSONError(w, err.Error(), status)
}

func statusFor(err error) int {
	if errors.Is(err, scanner.ErrAlreadyScanning) {
		return http.StatusConflict
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeJSONErr(w, r, v); err != nil {
		writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func decodeJSONErr(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt parses an integer query parameter, falling back to def
func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}
