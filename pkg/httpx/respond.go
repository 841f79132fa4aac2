// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrBadRequest marks client input errors raised by the handlers themselves.
var ErrBadRequest = errors.New("bad request")

// BadRequest wraps a message as ErrBadRequest.
func BadRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// RespondError logs err with the request id and replies with status. Server
// errors hide the message from the client.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, err error) {
	requestID := middleware.GetReqID(r.Context())

	level := slog.LevelWarn
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
		msg = http.StatusText(status)
	}
	logger.Log(r.Context(), level, "request error",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status", status),
		slog.String("request_id", requestID),
		"error", err,
	)

	WriteJSON(w, status, ErrorResponse{Error: msg, RequestID: requestID})
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return BadRequest("invalid JSON body: %v", err)
	}
	return nil
}

// ParseID parses a positive int64 path or form value.
func ParseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest("%s must be a positive integer", name)
	}
	return id, nil
}

// ParseBool parses an optional boolean, returning def when raw is empty.
func ParseBool(name, raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, BadRequest("%s must be a boolean", name)
	}
	return v, nil
}
