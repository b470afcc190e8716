package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/storefront/api/internal/platform/secrets"
)

// ErrNotFound is returned when neither Secret Manager nor the fallback file holds the secret.
var ErrNotFound = errors.New("secrets: secret not found")

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver resolves secret://name references against Google Secret Manager. Values are cached for the
// life of the process. When Secret Manager is unreachable or denies access, values are read from a local
// KEY=VALUE file so development works without cloud credentials.
type Resolver struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger

	env        string
	project    string
	projectMap map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
	hits    metric.Int64Counter
}

type settings struct {
	logger       *zap.Logger
	env          string
	project      string
	projectMap   map[string]string
	fallbackPath string
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*settings)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEnvironment selects the key used to look up per-environment projects.
func WithEnvironment(env string) Option {
	return func(s *settings) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			s.env = env
		}
	}
}

// WithDefaultProject sets the project used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(s *settings) {
		s.projectMap = make(map[string]string, len(m))
		for k, v := range m {
			s.projectMap[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// WithFallbackFile overrides the local fallback file path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

func withClient(client accessClient) Option {
	return func(s *settings) { s.client = client }
}

// NewResolver builds a Resolver. A Secret Manager client that cannot be created leaves the resolver in
// fallback-only mode.
func NewResolver(ctx context.Context, opts ...Option) *Resolver {
	s := settings{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		logger:       s.logger,
		env:          s.env,
		project:      s.project,
		projectMap:   s.projectMap,
		fallbackPath: s.fallbackPath,
		cache:        make(map[string]string),
	}

	var err error
	if r.latency, err = s.meter.Float64Histogram("secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"),
	); err != nil {
		s.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if r.hits, err = s.meter.Int64Counter("secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"),
	); err != nil {
		s.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	switch {
	case s.client != nil:
		r.client = s.client
	case r.projectFor() != "":
		client, err := secretmanager.NewClient(ctx, s.clientOpts...)
		if err != nil {
			s.logger.Warn("secrets: secret manager client unavailable; using fallback file", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r == nil || !r.ownsClient || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// ResolveSecret returns the value for a secret://name[?version=N] reference.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	name, version, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := name + "#" + version

	r.mu.RLock()
	value, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		if r.hits != nil {
			r.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", mask(name))))
		}
		r.record(ctx, start, "cache")
		return value, nil
	}

	source := "remote"
	value, err = r.fetch(ctx, name, version)
	if err != nil {
		if !useFallback(err) {
			r.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", mask(name), err)
		}
		r.logger.Debug("secrets: using fallback file", zap.String("secret", mask(name)), zap.Error(err))
		fallback, ok := r.lookupFallback(name)
		if !ok {
			r.record(ctx, start, "error")
			return "", fmt.Errorf("%w: %s", ErrNotFound, mask(name))
		}
		value, source = fallback, "fallback"
	}

	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
	r.record(ctx, start, source)
	return value, nil
}

var errNoClient = errors.New("secrets: secret manager not configured")

func (r *Resolver) fetch(ctx context.Context, name, version string) (string, error) {
	project := r.projectFor()
	if r.client == nil || project == "" {
		return "", errNoClient
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) projectFor() string {
	if id := r.projectMap[r.env]; id != "" {
		return id
	}
	return r.project
}

func (r *Resolver) lookupFallback(name string) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		file, err := os.Open(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: fallback file unreadable", zap.String("path", r.fallbackPath), zap.Error(err))
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if parsed, _, err := parseReference(key); err == nil {
				key = parsed
			}
			if key != "" {
				r.fallback[key] = strings.TrimSpace(value)
			}
		}
	})
	value, ok := r.fallback[name]
	return value, ok
}

func (r *Resolver) record(ctx context.Context, start time.Time, source string) {
	if r.latency == nil {
		return
	}
	r.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

// parseReference accepts secret://name and secret://name?version=3 and returns the name and version.
func parseReference(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return "", "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "", "", errors.New("secrets: missing secret name")
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return name, version, nil
}

func useFallback(err error) bool {
	if errors.Is(err, errNoClient) {
		return true
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.NotFound:
		return true
	default:
		return false
	}
}

func mask(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:6])
}
