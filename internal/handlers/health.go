package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/httpx"
)

// HealthReporter collects dependency status for readiness checks.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	reporter HealthReporter
	build    BuildInfo
	clock    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthReporter sets the dependency reporter used by /readyz.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) {
		h.reporter = reporter
	}
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers. Without a reporter /readyz only reports liveness.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type checkPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readinessPayload struct {
	Status      string                  `json:"status"`
	Version     string                  `json:"version,omitempty"`
	Environment string                  `json:"environment,omitempty"`
	Uptime      string                  `json:"uptime"`
	Timestamp   string                  `json:"timestamp"`
	Checks      map[string]checkPayload `json:"checks"`
	Details     []string                `json:"details,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

// Readyz runs dependency checks and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock().UTC()

	if h.reporter == nil {
		httpx.WriteJSON(w, http.StatusOK, readinessPayload{
			Status:    domain.HealthStatusOK,
			Version:   h.build.Version,
			Uptime:    now.Sub(h.build.StartedAt).Round(time.Second).String(),
			Timestamp: now.Format(time.RFC3339),
			Checks:    map[string]checkPayload{},
		})
		return
	}

	report, err := h.reporter.Collect(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}

	payload := readinessPayload{
		Status:      report.Status,
		Version:     firstNonEmpty(report.Version, h.build.Version),
		Environment: firstNonEmpty(report.Environment, h.build.Environment),
		Uptime:      report.Uptime.Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
		Checks:      make(map[string]checkPayload, len(report.Checks)),
	}
	if payload.Status == "" {
		payload.Status = domain.HealthStatusOK
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		entry := checkPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
		if !check.CheckedAt.IsZero() {
			entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339)
		}
		payload.Checks[name] = entry
		if check.Status != domain.HealthStatusOK {
			reason := firstNonEmpty(check.Error, check.Detail, check.Status)
			payload.Details = append(payload.Details, fmt.Sprintf("%s: %s", name, reason))
		}
	}

	status := http.StatusOK
	if payload.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, payload)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
