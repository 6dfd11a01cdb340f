package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	values map[string]string
	err    error
	calls  int
}

func (c *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (c *fakeSecretClient) Close() error { return nil }

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	return fetcher
}

func TestResolveSecretPassesThroughLiterals(t *testing.T) {
	client := &fakeSecretClient{}
	fetcher := newTestFetcher(t, WithSecretManagerClient(client))

	value, err := fetcher.ResolveSecret(context.Background(), "plain-value")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if value != "plain-value" {
		t.Fatalf("unexpected value %q", value)
	}
	if client.calls != 0 {
		t.Fatalf("expected no remote calls for literals, got %d", client.calls)
	}
}

func TestResolveSecretFetchesAndCaches(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/proj-1/secrets/calendar-credentials/versions/latest": "json-blob",
	}}
	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithDefaultProject("proj-1"))

	for i := 0; i < 3; i++ {
		value, err := fetcher.ResolveSecret(context.Background(), "secret://calendar-credentials")
		if err != nil {
			t.Fatalf("ResolveSecret returned error: %v", err)
		}
		if value != "json-blob" {
			t.Fatalf("unexpected value %q", value)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected one remote access, got %d", client.calls)
	}
}

func TestResolveSecretExplicitProjectAndVersion(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/other/secrets/api-key/versions/7": "v7-value",
	}}
	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithDefaultProject("proj-1"))

	value, err := fetcher.ResolveSecret(context.Background(), "secret://other/api-key@7")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if value != "v7-value" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestResolveSecretRejectsMalformedReferences(t *testing.T) {
	fetcher := newTestFetcher(t, WithSecretManagerClient(&fakeSecretClient{}), WithDefaultProject("proj-1"))

	for _, ref := range []string{"secret://", "secret://name@", "secret://a/b/c"} {
		if _, err := fetcher.ResolveSecret(context.Background(), ref); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("ref %q: expected ErrInvalidReference, got %v", ref, err)
		}
	}
}

func TestResolveSecretUsesFallbackWhenUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("# local secrets\ncalendar-credentials=local-blob\n"), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &fakeSecretClient{err: status.Error(codes.Unavailable, "backend down")}
	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithDefaultProject("proj-1"),
		WithFallbackFile(path),
	)

	value, err := fetcher.ResolveSecret(context.Background(), "secret://calendar-credentials")
	if err != nil {
		t.Fatalf("expected fallback resolution, got %v", err)
	}
	if value != "local-blob" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestResolveSecretNotFoundDoesNotFallBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("missing-secret=should-not-be-used\n"), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &fakeSecretClient{values: map[string]string{}}
	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithDefaultProject("proj-1"),
		WithFallbackFile(path),
	)

	if _, err := fetcher.ResolveSecret(context.Background(), "secret://missing-secret"); err == nil {
		t.Fatal("expected not-found error to propagate")
	}
}

func TestInvalidateDropsCachedSecret(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/proj-1/secrets/api-key/versions/latest": "v1",
	}}
	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithDefaultProject("proj-1"))

	if _, err := fetcher.ResolveSecret(context.Background(), "secret://api-key"); err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	fetcher.Invalidate("api-key")
	if _, err := fetcher.ResolveSecret(context.Background(), "secret://api-key"); err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected refetch after invalidation, got %d calls", client.calls)
	}
}
