// Package shared holds the response helpers every handler uses, so the error
// taxonomy maps to status codes in exactly one place.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "pinksync/pkg/domain-errors"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a domain error onto the HTTP taxonomy. Unknown errors are
// internal; their details never leak to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusOf(code)

	msg := "internal error"
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	WriteJSON(w, status, ErrorResponse{Error: string(code), Message: msg})
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeUnregisteredApp:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeLowTrust:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeUnknownIdentity:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}

// DecodeLenient reads a JSON request body into v, ignoring fields v does not
// declare. Externally-defined payloads like repository webhooks carry whatever
// schema the sender uses; only the fields this core reads are validated.
func DecodeLenient(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}
