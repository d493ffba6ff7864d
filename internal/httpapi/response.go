// Package httpapi exposes the services as a JSON REST API under /api/v1.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/splitledger/internal/apperr"
)

// Response codes carried in every envelope.
const (
	CodeOK            = "OK"
	CodeError         = "ER"
	CodeNotFound      = "NF"
	CodeWrongPassword = "ER1"
)

// Envelope is the body of every API response.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WriteResponse encodes env with the given status.
func WriteResponse(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=0")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	WriteResponse(w, status, Envelope{Code: CodeOK, Message: message, Data: data})
}

// WriteError maps err onto a status and envelope code. Errors that wrap
// none of the apperr kinds are reported as a generic server error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if !apperr.IsClientError(err) {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	WriteResponse(w, status, Envelope{Code: code, Message: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrWrongPassword):
		return http.StatusBadRequest, CodeWrongPassword
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, CodeError
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, CodeError
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, CodeError
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, CodeError
	default:
		return http.StatusInternalServerError, CodeError
	}
}
