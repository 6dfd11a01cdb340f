package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore implements Store on a Firestore collection. Reservations run
// in a transaction so concurrent requests with the same key serialise.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the backing collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type idempotencyDoc struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	Status         string              `firestore:"status"`
	ResponseStatus int                 `firestore:"responseStatus"`
	ResponseHeader map[string][]string `firestore:"responseHeader,omitempty"`
	ResponseBody   []byte              `firestore:"responseBody,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func (d idempotencyDoc) toRecord() Record {
	return Record{
		Key:            d.Key,
		Fingerprint:    d.Fingerprint,
		Status:         Status(d.Status),
		ResponseStatus: d.ResponseStatus,
		ResponseHeader: d.ResponseHeader,
		ResponseBody:   d.ResponseBody,
		CreatedAt:      d.CreatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fp string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(recordID(key))

	var result Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var doc idempotencyDoc
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}

		// Missing or expired records start a fresh reservation.
		if err != nil || !now.Before(doc.ExpiresAt) {
			doc = idempotencyDoc{
				Key:         key,
				Fingerprint: fp,
				Status:      string(StatusPending),
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			result = Reservation{State: StateNew, Record: doc.toRecord()}
			return nil
		}

		if doc.Fingerprint != fp {
			return ErrFingerprintMismatch
		}
		if doc.Status == string(StatusCompleted) {
			result = Reservation{State: StateReplay, Record: doc.toRecord()}
			return nil
		}
		result = Reservation{State: StateInFlight, Record: doc.toRecord()}
		return nil
	})

	return result, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fp string, record Record) error {
	ref := s.client.Collection(s.collection).Doc(recordID(key))

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var existing idempotencyDoc
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if existing.Fingerprint != fp {
				return ErrFingerprintMismatch
			}
		}

		return tx.Set(ref, idempotencyDoc{
			Key:            key,
			Fingerprint:    fp,
			Status:         string(StatusCompleted),
			ResponseStatus: record.ResponseStatus,
			ResponseHeader: record.ResponseHeader,
			ResponseBody:   record.ResponseBody,
			CreatedAt:      record.CreatedAt,
			ExpiresAt:      record.ExpiresAt,
		})
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	_, err := s.client.Collection(s.collection).Doc(recordID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
