package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connected/internal/validation"
)

// maxBodyBytes bounds request bodies; a roster batch is the largest payload
const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

var errInvalidJSON = errors.New("invalid JSON body")

// readJSON reads a single JSON document into out
func readJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return nil
}

// decodeJSON reads a request struct and validates its tags
func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	if err := readJSON(w, r, out); err != nil {
		return err
	}
	return validation.Struct(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// sendBadRequest answers a decode or validation failure, listing field errors when present
func sendBadRequest(w http.ResponseWriter, err error) {
	if fields := validation.Fields(err); fields != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Fields:  fields,
		})
		return
	}
	if errors.Is(err, errInvalidJSON) {
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	sendError(w, err.Error(), http.StatusBadRequest)
}
