// Package idempotency guards mutating endpoints against duplicate submission.
// Clients attach an Idempotency-Key header; the first request reserves the key
// and its response is replayed to retries carrying the same key and payload.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed records are retained before a key may be reused.
const DefaultTTL = 24 * time.Hour

// Status marks where a record sits in its lifecycle.
type Status string

const (
	// StatusPending means the key is reserved but no response has been stored.
	StatusPending Status = "pending"
	// StatusCompleted means a response is stored and can be replayed.
	StatusCompleted Status = "completed"
)

// State describes the outcome of reserving a key.
type State int

const (
	// StateNew lets the caller proceed with the guarded handler.
	StateNew State = iota
	// StateReplay means a stored response should be returned as-is.
	StateReplay
	// StateInFlight means another request holds the reservation.
	StateInFlight
)

// Record is the persisted response captured for a reserved key.
type Record struct {
	Key            string
	Fingerprint    string
	Status         Status
	ResponseStatus int
	ResponseHeader map[string][]string
	ResponseBody   []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Reservation pairs the reservation state with the stored record, if any.
type Reservation struct {
	State  State
	Record Record
}

// ErrFingerprintMismatch is returned when a key is reused with a different request payload.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with different request")

// Store persists reservations and their responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, record Record) error
	Release(ctx context.Context, key, fingerprint string) error
}

func recordID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func fingerprint(method, path, actor string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write([]byte(actor))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func cloneHeader(src http.Header) map[string][]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string][]string, len(src))
	for name, values := range src {
		if strings.EqualFold(name, "Content-Length") || strings.EqualFold(name, "Date") {
			continue
		}
		dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return dst
}
