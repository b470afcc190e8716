package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/requestctx"
)

// InjectLoggerMiddleware stores the base logger on the request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// SessionMiddleware copies the checkout session header onto the request context.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := SanitizeID(r.Header.Get(requestctx.SessionHeader))
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithSessionID(r.Context(), sessionID)))
	})
}

// RequestLoggerMiddleware logs request start and completion with structured fields suitable for Cloud Logging.
// The completion line is logged at error level for 5xx, warn for 4xx, info otherwise.
func RequestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		traceInfo, _ := requestctx.Trace(ctx)

		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("method", SanitizeMethod(r.Method)),
			zap.String("path", SanitizeRoute(r.URL.Path)),
			zap.String("trace_id", traceInfo.TraceID),
		}
		if sessionID := requestctx.SessionID(ctx); sessionID != "" {
			fields = append(fields, zap.String("checkout_session", sessionID))
		}
		if traceInfo.ProjectID != "" && traceInfo.TraceID != "" {
			fields = append(fields, zap.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", traceInfo.ProjectID, traceInfo.TraceID)))
		}
		if ip := remoteIP(r); ip != "" {
			fields = append(fields, zap.String("remote_ip", ip))
		}
		logger := requestctx.Logger(ctx).With(fields...)
		r = r.WithContext(requestctx.WithLogger(ctx, logger))

		recorder := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		logger.Info("request started")

		defer func() {
			rec := recover()
			status := recorder.Status()
			if rec != nil && status < http.StatusInternalServerError {
				status = http.StatusInternalServerError
			}

			// the route pattern is only known once chi has matched the request.
			route := routePattern(r)
			completed := []zap.Field{
				zap.String("route", SanitizeRoute(route)),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes", recorder.bytes),
			}

			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(SanitizeRoute(route)))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, http.StatusText(status))
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("request completed", completed...)
			case status >= http.StatusBadRequest:
				logger.Warn("request completed", completed...)
			default:
				logger.Info("request completed", completed...)
			}

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// RecoveryMiddleware captures panics, logs the stack trace, and returns a JSON error response.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
