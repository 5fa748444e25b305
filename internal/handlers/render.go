// Package handlers implements the HTTP handlers for the product catalog API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierr "github.com/ltcatalog/ltcatalog/internal/errors"
)

// RequestIDHeader carries the per-request identifier set by the server
// middleware.
const RequestIDHeader = "X-Request-Id"

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Writing JSON response failed", "error", err)
	}
}

// WriteError renders an APIError, echoing the request ID set by the
// middleware.
func WriteError(w http.ResponseWriter, r *http.Request, e *apierr.APIError) {
	writeJSON(w, e.HTTPStatus, ErrorResponse{
		Code:      e.Code,
		Message:   e.Message,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}
