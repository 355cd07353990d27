// Package httpx provides the JSON envelope helpers shared by every API handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// maxBodyBytes bounds request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

// Envelope is the body shape of every API response.
type Envelope struct {
	Success bool               `json:"success"`
	Data    any                `json:"data,omitempty"`
	Message string             `json:"message,omitempty"`
	Meta    *shared.Pagination `json:"meta,omitempty"`
	Error   *ErrorBody         `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError points at one invalid input field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Updated writes a 200 envelope with data and a message.
func Updated(w http.ResponseWriter, data any, message string) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, data any, message string) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

// Message writes a 200 envelope carrying only a message.
func Message(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message})
}

// Paginated writes a 200 envelope with pagination metadata.
func Paginated(w http.ResponseWriter, data any, meta shared.Pagination) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: &meta})
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// ErrMalformedBody is returned by DecodeJSON for unreadable bodies.
var ErrMalformedBody = errors.New("malformed request body")

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return nil
}
