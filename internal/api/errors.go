package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/hub"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps errors from the entry, platform and hub layers to
// HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entries.ErrEntryNotFound),
		errors.Is(err, platform.ErrUnknownDevice),
		errors.Is(err, platform.ErrNoImage):
		writeNotFound(w, err.Error())
	case errors.Is(err, entries.ErrIntegrationNotFound),
		errors.Is(err, entries.ErrInvalidEntry):
		writeBadRequest(w, err.Error())
	case errors.Is(err, platform.ErrInvalidCommand),
		errors.Is(err, platform.ErrInvalidFanSpeed),
		errors.Is(err, platform.ErrMissingParam):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, entries.ErrUnloadFailed),
		errors.Is(err, entries.ErrUnsupportedVersion),
		errors.Is(err, entries.ErrMigrationFailed),
		errors.Is(err, entries.ErrEntryExists),
		errors.Is(err, platform.ErrNotLoaded):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, hub.ErrClosed),
		errors.Is(err, mqtt.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
