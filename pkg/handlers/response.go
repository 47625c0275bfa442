package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps the sentinel errors onto stable HTTP error codes.
// The code strings are part of the API contract; clients branch on them.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperrors.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperrors.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, apperrors.ErrImmutableRecord):
		status, code = http.StatusConflict, "immutable_record"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, apperrors.ErrLedgerIntegrity):
		status, code = http.StatusInternalServerError, "ledger_integrity"
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
