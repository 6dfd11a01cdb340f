package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
)

func TestCreatedAtCursorRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 10, 30, 0, 123456789, time.UTC)

	token, err := createdAtToken(createdAt, "ord_42")
	if err != nil {
		t.Fatalf("createdAtToken returned error: %v", err)
	}

	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	startAfter, err := createdAtStartAfter(cursor)
	if err != nil {
		t.Fatalf("createdAtStartAfter returned error: %v", err)
	}

	if len(startAfter) != 2 {
		t.Fatalf("expected 2 cursor values, got %d", len(startAfter))
	}
	ts, ok := startAfter[0].(time.Time)
	if !ok {
		t.Fatalf("expected time.Time cursor component, got %T", startAfter[0])
	}
	if !ts.Equal(createdAt) {
		t.Fatalf("timestamp changed across round trip: %s vs %s", ts, createdAt)
	}
	if startAfter[1] != "ord_42" {
		t.Fatalf("expected document id ord_42, got %v", startAfter[1])
	}
}

func TestCreatedAtStartAfterEmptyCursor(t *testing.T) {
	startAfter, err := createdAtStartAfter(pagination.Cursor{})
	if err != nil {
		t.Fatalf("empty cursor returned error: %v", err)
	}
	if startAfter != nil {
		t.Fatalf("expected nil start-after for empty cursor, got %v", startAfter)
	}
}

func TestCreatedAtStartAfterRejectsBadTimestamp(t *testing.T) {
	for _, cursor := range []pagination.Cursor{
		{StartAfter: []any{"not-a-timestamp", "ord_42"}},
		{StartAfter: []any{42.0, "ord_42"}},
	} {
		_, err := createdAtStartAfter(cursor)
		if !errors.Is(err, pagination.ErrInvalidPageToken) {
			t.Fatalf("cursor %v: expected ErrInvalidPageToken, got %v", cursor.StartAfter, err)
		}
	}
}
