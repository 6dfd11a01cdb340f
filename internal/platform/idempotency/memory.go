package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process memory. Meant for local
// development and tests; production deployments use the Firestore store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fp string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	record, ok := s.records[id]
	if !ok || !now.Before(record.ExpiresAt) {
		record = Record{
			Key:         key,
			Fingerprint: fp,
			Status:      StatusPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		s.records[id] = record
		return Reservation{State: StateNew, Record: record}, nil
	}

	if record.Fingerprint != fp {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{State: StateReplay, Record: record}, nil
	}
	return Reservation{State: StateInFlight, Record: record}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fp string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	if existing, ok := s.records[id]; ok && existing.Fingerprint != fp {
		return ErrFingerprintMismatch
	}
	record.Key = key
	record.Fingerprint = fp
	record.Status = StatusCompleted
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, recordID(key))
	return nil
}
