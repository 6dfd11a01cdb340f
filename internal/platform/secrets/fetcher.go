// Package secrets resolves secret:// references using Google Secret Manager
// with in-process caching and an optional local fallback file.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	refScheme            = "secret://"
	defaultVersion       = "latest"
	defaultFallbackPath  = ".secrets.local"
	fallbackKeySeparator = "="
)

// ErrInvalidReference signals a malformed secret reference.
var ErrInvalidReference = errors.New("secrets: invalid reference")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Secret Manager.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	defaultProject string
	fallbackPath   string

	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string
}

type fetcherConfig struct {
	logger         *zap.Logger
	defaultProject string
	fallbackPath   string
	client         secretManagerClient
	clientOpts     []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithDefaultProject sets the project used for bare secret names.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProject = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile points at a local key=value file consulted when Secret
// Manager is unreachable (development environments).
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithSecretManagerClient injects a pre-built client (used in tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Google API client options.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher constructs a Fetcher, creating a Secret Manager client unless one
// was injected.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	f := &Fetcher{
		client:         cfg.client,
		logger:         cfg.logger,
		defaultProject: cfg.defaultProject,
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]string),
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the underlying client when owned by the fetcher.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret resolves a secret:// reference. Plain values pass through
// untouched so configuration fields may hold either literals or references.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, refScheme) {
		return ref, nil
	}

	project, name, version, err := parseReference(ref, f.defaultProject)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s@%s", project, name, version)

	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	value, err := f.fetchRemote(ctx, project, name, version)
	if err != nil {
		if fallback, ok := f.lookupFallback(name); ok && isUnavailable(err) {
			f.logger.Warn("secret resolved from fallback file",
				zap.String("secret", name))
			return fallback, nil
		}
		return "", err
	}

	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
	return value, nil
}

// Invalidate drops all cached versions of the named secret.
func (f *Fetcher) Invalidate(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.Contains(key, "/"+name+"@") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) fetchRemote(ctx context.Context, project, name, version string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(name string) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		return "", false
	}
	value, ok := f.fallbackVals[name]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = make(map[string]string)
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		f.fallbackErr = err
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, fallbackKeySeparator)
		if !found {
			continue
		}
		f.fallbackVals[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	f.fallbackErr = scanner.Err()
}

// parseReference accepts secret://name, secret://name@version,
// secret://project/name and secret://project/name@version.
func parseReference(ref, defaultProject string) (project, name, version string, err error) {
	body := strings.TrimPrefix(ref, refScheme)
	if body == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}

	version = defaultVersion
	if at := strings.LastIndex(body, "@"); at >= 0 {
		version = strings.TrimSpace(body[at+1:])
		body = body[:at]
		if version == "" {
			return "", "", "", fmt.Errorf("%w: empty version in %q", ErrInvalidReference, ref)
		}
	}

	project = defaultProject
	name = body
	if slash := strings.Index(body, "/"); slash >= 0 {
		project = strings.TrimSpace(body[:slash])
		name = strings.TrimSpace(body[slash+1:])
	}
	if project == "" {
		return "", "", "", fmt.Errorf("%w: no project for %q", ErrInvalidReference, ref)
	}
	if name == "" || strings.Contains(name, "/") {
		return "", "", "", fmt.Errorf("%w: bad secret name in %q", ErrInvalidReference, ref)
	}
	return project, name, version, nil
}

func isUnavailable(err error) bool {
	st, ok := status.FromError(errors.Unwrap(err))
	if !ok {
		st, ok = status.FromError(err)
	}
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.PermissionDenied, codes.Unauthenticated:
		return true
	default:
		return false
	}
}
