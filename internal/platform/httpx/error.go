package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/storefront/api/internal/platform/requestctx"
)

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// WithDetails attaches additional JSON-serialisable metadata, rendered under "details".
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError writes the error envelope. Request and trace IDs default to the values on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	body := errorBody{
		Error:     err.Code,
		Message:   err.Message,
		Status:    err.Status,
		RequestID: firstSet(err.RequestID, sanitize(middleware.GetReqID(ctx), 80)),
		TraceID:   firstSet(err.TraceID, sanitize(requestctx.TraceID(ctx), 64)),
		Details:   err.Details,
	}
	if body.Status == 0 {
		body.Status = http.StatusInternalServerError
	}
	WriteJSON(w, body.Status, body)
}

func firstSet(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// WriteJSON encodes payload as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var lineBreaks = strings.NewReplacer("\n", " ", "\r", " ")

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.TrimSpace(lineBreaks.Replace(value))
	if len(value) <= limit {
		return value
	}
	// cut on a rune boundary so the JSON stays valid UTF-8
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
