package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kpta119/Drones-Project-sub001/internal/platform/auth"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/httpx"
)

const (
	headerKey    = "Idempotency-Key"
	headerReplay = "X-Idempotent-Replay"
)

type middlewareConfig struct {
	ttl      time.Duration
	clock    func() time.Time
	logger   *zap.Logger
	required bool
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithTTL configures how long completed records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger injects the logger used for persistence failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithOptionalKey lets requests without an Idempotency-Key header pass
// through unguarded instead of being rejected.
func WithOptionalKey() MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.required = false
	}
}

// Middleware wraps a handler with idempotency-key semantics. A request whose
// key already completed gets the stored response replayed; a key still in
// flight is rejected with 409.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		ttl:      DefaultTTL,
		clock:    time.Now,
		logger:   zap.NewNop(),
		required: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(headerKey))
			if key == "" {
				if cfg.required {
					httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_key_required", "missing Idempotency-Key header", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("request_body_unreadable", "unable to read request body", http.StatusInternalServerError))
				return
			}

			fp := fingerprint(r.Method, r.URL.Path, requester(r), body)
			now := cfg.clock().UTC()

			reservation, err := store.Reserve(r.Context(), key, fp, now, cfg.ttl)
			if err == ErrFingerprintMismatch {
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			}
			if err != nil {
				cfg.logger.Error("idempotency reserve failed", zap.Error(err))
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}

			switch reservation.State {
			case StateReplay:
				replay(w, reservation.Record)
				return
			case StateInFlight:
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := &captureWriter{header: make(http.Header)}
			next.ServeHTTP(recorder, r)

			record := Record{
				Status:         StatusCompleted,
				ResponseStatus: recorder.status(),
				ResponseHeader: cloneHeader(recorder.header),
				ResponseBody:   recorder.body.Bytes(),
				CreatedAt:      now,
				ExpiresAt:      now.Add(cfg.ttl),
			}
			if err := store.Complete(r.Context(), key, fp, record); err != nil {
				cfg.logger.Error("idempotency complete failed",
					zap.String("key", key), zap.Error(err))
				if err := store.Release(r.Context(), key, fp); err != nil {
					cfg.logger.Error("idempotency release failed",
						zap.String("key", key), zap.Error(err))
				}
			}

			recorder.flush(w)
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
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

// requester scopes fingerprints per authenticated user so two users cannot
// collide on the same key.
func requester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		return identity.UID
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeader {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(headerReplay, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// captureWriter buffers the handler response so it can be persisted before
// being written to the client.
type captureWriter struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.statusCode == 0 {
		c.statusCode = status
	}
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.statusCode == 0 {
		c.statusCode = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) status() int {
	if c.statusCode == 0 {
		return http.StatusOK
	}
	return c.statusCode
}

func (c *captureWriter) flush(w http.ResponseWriter) {
	for name, values := range c.header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(c.status())
	if c.body.Len() > 0 {
		_, _ = w.Write(c.body.Bytes())
	}
}
