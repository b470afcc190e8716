package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values: map[string]string{},
		errors: map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err := f.errors[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/shop-prod/secrets/stripe_api_key/versions/latest"
	client.values[resource] = "sk_live_remote"

	resolver := NewResolver(ctx,
		withClient(client),
		WithDefaultProject("shop-dev"),
		WithEnvironment("prod"),
		WithProjectMap(map[string]string{"PROD": "shop-prod"}),
		WithFallbackFile(""),
	)

	for i := 0; i < 2; i++ {
		got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("ResolveSecret returned error: %v", err)
		}
		if got != "sk_live_remote" {
			t.Fatalf("expected remote value, got %q", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected a single remote fetch, got %d", calls)
	}
}

func TestResolvePinnedVersion(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/p/secrets/key/versions/3"] = "v3"

	resolver := NewResolver(ctx, withClient(client), WithDefaultProject("p"), WithFallbackFile(""))

	got, err := resolver.ResolveSecret(ctx, "sm://key?version=3")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "v3" {
		t.Fatalf("expected v3, got %q", got)
	}
}

func TestResolveFallsBackWhenSecretManagerDenies(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local\nsecret://stripe_api_key = sk_test_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := newFakeSecretClient()
	client.errors["projects/p/secrets/stripe_api_key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	resolver := NewResolver(ctx, withClient(client), WithDefaultProject("p"), WithFallbackFile(path))

	got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "sk_test_local" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("stripe_api_key=sk_test_plain\n"), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	resolver := NewResolver(ctx, WithFallbackFile(path))
	defer resolver.Close()

	got, err := resolver.ResolveSecret(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "sk_test_plain" {
		t.Fatalf("expected fallback value, got %q", got)
	}

	if _, err := resolver.ResolveSecret(ctx, "secret://unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolvePropagatesHardErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors["projects/p/secrets/key/versions/latest"] = status.Error(codes.InvalidArgument, "bad name")

	resolver := NewResolver(ctx, withClient(client), WithDefaultProject("p"), WithFallbackFile(""))

	if _, err := resolver.ResolveSecret(ctx, "secret://key"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected access error, got %v", err)
	}
}

func TestParseReference(t *testing.T) {
	for _, ref := range []string{"", "https://key", "secret://"} {
		if _, _, err := parseReference(ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}
