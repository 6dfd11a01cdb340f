package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaultsAndCaps(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d, got %d", DefaultPageSize, params.PageSize)
	}

	params, err = Parse(url.Values{"pageSize": {"500"}}, Options{MaxPageSize: 100})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 100 {
		t.Fatalf("expected page size capped at 100, got %d", params.PageSize)
	}
}

func TestParseRejectsInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-20"} {
		if _, err := Parse(url.Values{"pageSize": {raw}}, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize %q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2026-03-14T10:30:00Z", "ord_42"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 2 {
		t.Fatalf("expected 2 cursor values, got %d", len(cursor.StartAfter))
	}
	if cursor.StartAfter[1] != "ord_42" {
		t.Fatalf("unexpected cursor value %v", cursor.StartAfter[1])
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}

func TestParseRejectsMalformedToken(t *testing.T) {
	if _, err := Parse(url.Values{"pageToken": {"%%%not-base64%%%"}}, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestParseAcceptsValidToken(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"a"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	params, err := Parse(url.Values{"pageToken": {token}}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected token to round-trip, got %q", params.PageToken)
	}
	if len(params.Cursor.StartAfter) != 1 {
		t.Fatalf("expected decoded cursor, got %#v", params.Cursor)
	}
}
