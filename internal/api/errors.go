package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/hal"
	"github.com/nerrad567/gray-logic-fx/internal/routing"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeGone           = "gone"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeIncompatible   = "incompatible_effect"
	ErrCodeHalFailure     = "hal_failure"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
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

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps effect, HAL and routing errors onto HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, effect.ErrIncompatibleEffect):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeIncompatible, err.Error())
	case errors.Is(err, hal.ErrEffectNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, effect.ErrHalCreation), errors.Is(err, effect.ErrPatchBinding):
		writeError(w, http.StatusBadGateway, ErrCodeHalFailure, err.Error())
	case errors.Is(err, effect.ErrInvalidClient):
		writeBadRequest(w, err.Error())
	case errors.Is(err, effect.ErrStaleHandle), errors.Is(err, effect.ErrInstanceRetired):
		writeError(w, http.StatusGone, ErrCodeGone, err.Error())
	case errors.Is(err, routing.ErrInvalidPatch):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, routing.ErrPatchNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, routing.ErrPatchConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
