package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	rr := httptest.NewRecorder()

	err := NewError("shipping_unavailable", "rules\nunavailable", http.StatusServiceUnavailable).
		WithDetails(map[string]any{"ruleId": "shr_local"})
	WriteError(ctx, rr, err)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "shipping_unavailable" || body["message"] != "rules unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["request_id"] != "req-1" {
		t.Fatalf("expected request id from context, got %v", body["request_id"])
	}
	if _, ok := body["trace_id"]; ok {
		t.Fatalf("expected trace_id to be omitted without a trace")
	}
	details, _ := body["details"].(map[string]any)
	if details["ruleId"] != "shr_local" {
		t.Fatalf("unexpected details %v", body["details"])
	}
}

func TestNewErrorTruncatesOnRuneBoundary(t *testing.T) {
	message := strings.Repeat("a", 511) + "ío"
	err := NewError("invalid_request", message, 0)

	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected zero status to default to 500, got %d", err.Status)
	}
	if !utf8.ValidString(err.Message) {
		t.Fatalf("truncated message is not valid UTF-8")
	}
	if len(err.Message) != 511 {
		t.Fatalf("expected the split rune to be dropped, got length %d", len(err.Message))
	}
}
