package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultEnvironment  = "local"

	defaultOperatorCacheTTL      = 60 * time.Minute
	defaultOperatorCacheCapacity = 1000
	defaultServiceCacheTTL       = 1440 * time.Minute
	defaultServiceCacheCapacity  = 100
	defaultUserCacheTTL          = 30 * time.Minute
	defaultUserCacheCapacity     = 5000
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	Calendar  CalendarConfig
	Events    EventsConfig
	Cache     CacheConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings for token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig lists bucket names used by the application.
type StorageConfig struct {
	PortfolioBucket string
}

// CalendarConfig controls the external calendar integration.
type CalendarConfig struct {
	Enabled          bool
	CredentialsFile  string
	CredentialsRef   string
	EventSummaryTmpl string
}

// EventsConfig controls the Pub/Sub side channel for order lifecycle events.
type EventsConfig struct {
	ProjectID  string
	OrderTopic string
}

// CacheBucketConfig declares TTL (time-to-idle) and capacity for one cache bucket.
type CacheBucketConfig struct {
	TTL      time.Duration
	Capacity int
}

// CacheConfig declares the per-bucket cache policy.
type CacheConfig struct {
	Operators CacheBucketConfig
	Services  CacheBucketConfig
	Users     CacheBucketConfig
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment string
	// LocalJWTSecret enables HS256 bearer tokens in non-production environments
	// where the Firebase verifier is not configured.
	LocalJWTSecret string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects an explicit key/value map taking precedence over system env.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading the process environment (tests).
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// EnvironmentValues returns the effective key/value environment map after
// applying precedence rules (dotenv < OS env < explicit map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load builds the Config from environment values and validates required fields.
func Load(opts ...Option) (Config, error) {
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}

	get := func(key string) string { return strings.TrimSpace(values[key]) }

	cfg := Config{
		Server: ServerConfig{
			Port:         stringOr(get("PORT"), defaultPort),
			ReadTimeout:  durationOr(get("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationOr(get("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationOr(get("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       get("FIREBASE_PROJECT_ID"),
			CredentialsFile: get("FIREBASE_CREDENTIALS_FILE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringOr(get("FIRESTORE_PROJECT_ID"), get("GOOGLE_CLOUD_PROJECT")),
			EmulatorHost: get("FIRESTORE_EMULATOR_HOST"),
		},
		Storage: StorageConfig{
			PortfolioBucket: get("STORAGE_PORTFOLIO_BUCKET"),
		},
		Calendar: CalendarConfig{
			Enabled:          boolOr(get("CALENDAR_SYNC_ENABLED"), true),
			CredentialsFile:  get("CALENDAR_CREDENTIALS_FILE"),
			CredentialsRef:   get("CALENDAR_CREDENTIALS_SECRET"),
			EventSummaryTmpl: stringOr(get("CALENDAR_EVENT_SUMMARY"), "Drone service %s"),
		},
		Events: EventsConfig{
			ProjectID:  stringOr(get("PUBSUB_PROJECT_ID"), get("GOOGLE_CLOUD_PROJECT")),
			OrderTopic: get("PUBSUB_ORDER_TOPIC"),
		},
		Cache: CacheConfig{
			Operators: CacheBucketConfig{
				TTL:      durationOr(get("CACHE_OPERATORS_TTL"), defaultOperatorCacheTTL),
				Capacity: intOr(get("CACHE_OPERATORS_CAPACITY"), defaultOperatorCacheCapacity),
			},
			Services: CacheBucketConfig{
				TTL:      durationOr(get("CACHE_SERVICES_TTL"), defaultServiceCacheTTL),
				Capacity: intOr(get("CACHE_SERVICES_CAPACITY"), defaultServiceCacheCapacity),
			},
			Users: CacheBucketConfig{
				TTL:      durationOr(get("CACHE_USERS_TTL"), defaultUserCacheTTL),
				Capacity: intOr(get("CACHE_USERS_CAPACITY"), defaultUserCacheCapacity),
			},
		},
		Security: SecurityConfig{
			Environment:    stringOr(get("ENVIRONMENT"), defaultEnvironment),
			LocalJWTSecret: get("LOCAL_JWT_SECRET"),
		},
	}

	var missing []string
	if cfg.Firestore.ProjectID == "" && cfg.Firestore.EmulatorHost == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if cfg.Security.Environment != defaultEnvironment && cfg.Firebase.ProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if cfg.Cache.Operators.Capacity <= 0 || cfg.Cache.Services.Capacity <= 0 || cfg.Cache.Users.Capacity <= 0 {
		missing = append(missing, "CACHE_*_CAPACITY")
	}
	if len(missing) > 0 {
		return Config{}, &ValidationError{fields: missing}
	}

	return cfg, nil
}

// IsLocal reports whether the configuration targets a local environment.
func (c Config) IsLocal() bool {
	return strings.EqualFold(c.Security.Environment, defaultEnvironment)
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
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
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func stringOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return fallback
}

func intOr(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}

func boolOr(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
