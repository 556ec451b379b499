package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a successful JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: getRequestID(r.Context()),
	})
}

// writeError maps an application error onto a status code by its kind.
// Unclassified errors are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch shared.KindOf(err) {
	case shared.ErrValidation:
		status, code = http.StatusBadRequest, "validation_error"
	case shared.ErrNotFound:
		status, code = http.StatusNotFound, "not_found"
	case shared.ErrConflict:
		status, code = http.StatusConflict, "conflict"
	case shared.ErrTransientSync:
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	}

	message := "An unexpected error occurred"
	if status != http.StatusInternalServerError {
		message = errorMessage(err)
	}

	log := logger.FromContext(r.Context())
	if status >= 500 {
		log.Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
	} else {
		log.Debug("request rejected", logger.String("path", r.URL.Path), logger.Err(err))
	}

	writeJSONError(w, r, status, code, message)
}

// errorMessage prefers the human-readable message of a domain error.
func errorMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// decodeJSON reads a JSON body into dst. Malformed bodies are validation
// errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.WrapError("http", "decode", shared.ErrValidation, "request body is empty", shared.ErrEmptyValue)
		}
		return shared.WrapError("http", "decode", shared.ErrValidation, fmt.Sprintf("invalid request body: %v", err), shared.ErrInvalidFormat)
	}
	return nil
}
