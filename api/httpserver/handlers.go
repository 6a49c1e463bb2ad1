package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize bounds request bodies read through DecodeJSON.
const MaxBodySize = 64 << 20

// ErrorResponse is the JSON body written by WriteError.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteJSON renders v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// Headers are already sent, an encoding failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders an ErrorResponse with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Code: status, Message: message})
}

// DecodeJSON decodes a size-limited JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
