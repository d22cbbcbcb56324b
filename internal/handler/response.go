package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError so the wire shape
// stays uniform:
//
//	writeJSON(w, logger, http.StatusOK, user)   // user may be nil → null
//	writeError(w, logger, err)
//
// Error bodies always look like
//
//	{"error": "validation_error", "message": "userid is required"}
//
// Only validation errors carry their own message. Everything else is logged
// here and answered with a generic 500 so SQL text or driver details never
// reach the client.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/user-directory/internal/apperror"
)

// maxBodyBytes caps request bodies read by decodeJSON.
const maxBodyBytes = 1 << 20

// ErrorResponse is the error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "validation_error")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends data as JSON with the given status code. A nil data value
// is encoded as the JSON literal null, which the API uses for "no such user".
//
// Headers and status must be set before the body: once Encode writes, the
// header is sent and later changes are ignored.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; all that is left is to log it.
		logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError maps a service error to an HTTP status and sends it.
//
//	apperror.ErrValidation → 400 validation_error (message passed through)
//	anything else          → 500 internal_error  (cause logged, not sent)
//
// errors.Is walks the whole chain, so a validation error wrapped with
// fmt.Errorf("...: %w", err) still maps to 400.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr) {
		writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: appErr.Message,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads the request body into dst. A malformed or oversized body
// is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.ValidationFailed("", "request body too large")
		}
		return apperror.ValidationFailed("", "invalid JSON body: "+err.Error())
	}
	return nil
}
