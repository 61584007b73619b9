package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/accessguard-core/internal/backup"
	"github.com/nerrad567/accessguard-core/internal/card"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
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

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps card and backup errors onto HTTP responses.
// Unrecognised errors are logged by the caller and answered with 500.
func writeDomainError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, card.ErrCardNotFound):
		writeNotFound(w, "card not found")
	case errors.Is(err, card.ErrCardExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "card already exists")
	case errors.Is(err, card.ErrInvalidCardID):
		writeBadRequest(w, "invalid card id")
	case errors.Is(err, backup.ErrBackupNotFound):
		writeNotFound(w, "backup not found")
	case errors.Is(err, backup.ErrInvalidBackupType):
		writeBadRequest(w, err.Error())
	case errors.Is(err, backup.ErrInvalidFileName):
		writeBadRequest(w, "invalid backup file name")
	case errors.Is(err, backup.ErrInvalidBackup):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	default:
		return false
	}
	return true
}
