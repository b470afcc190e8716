package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/requestctx"
)

const (
	// HeaderName carries the client-chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader is set on responses served from a stored record.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength = 255
)

type middlewareConfig struct {
	ttl   time.Duration
	clock func() time.Time
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithTTL sets how long a completed response is replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware requires an Idempotency-Key on every request it wraps. The first request with a key
// runs the handler and stores its response; later requests with the same key and the same body
// receive that stored response. Keys are scoped to the authenticated user. Server errors release
// the key so the client can retry.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := middlewareConfig{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx)

			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "Idempotency-Key header is required", http.StatusBadRequest))
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", "Idempotency-Key must be at most 255 characters", http.StatusBadRequest))
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			requester := requesterID(r)
			scoped := key + "|" + requester
			fingerprint := requestFingerprint(r, body, requester)

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "Idempotency-Key was already used for a different request", http.StatusConflict))
					return
				}
				logger.Error("idempotency reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process Idempotency-Key", http.StatusServiceUnavailable))
				return
			}

			switch reservation.State {
			case ReservationCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationPending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this Idempotency-Key is still in progress", http.StatusConflict))
				return
			}

			recorder := newResponseRecorder()
			next.ServeHTTP(recorder, r)

			if recorder.Status() >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
				recorder.flush(w)
				return
			}

			resp := Response{Status: recorder.Status(), Header: recorder.header, Body: recorder.body.Bytes()}
			if err := store.Complete(ctx, scoped, fingerprint, resp, cfg.clock(), cfg.ttl); err != nil {
				logger.Error("idempotency store response failed", zap.Error(err))
				if err := store.Release(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
			}
			recorder.flush(w)
		})
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.Actor()
	}
	return "anonymous"
}

func requestFingerprint(r *http.Request, body []byte, requester string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		requester,
		sha256Hex(body),
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeader {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(ReplayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseRecorder buffers the handler output so it can be stored before reaching the client.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.Status())
	if r.body.Len() > 0 {
		_, _ = w.Write(r.body.Bytes())
	}
}
