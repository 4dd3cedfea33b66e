package ops

import (
	"testing"

	"github.com/hpungsan/fern/internal/errors"
)

func TestFetch(t *testing.T) {
	database := setupTestDB(t)
	seedSuggestions(t, database)

	out, err := Fetch(database, FetchInput{ID: " 01EXP002 "})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.Context != "MathBlock" || out.Prefix != `\[` || out.Suffix != `\]` || out.Completion != "x^2" {
		t.Errorf("Fetch = %+v", out)
	}
	if out.AcceptedAt != nil {
		t.Errorf("AcceptedAt = %v, want nil", *out.AcceptedAt)
	}

	if _, err := Fetch(database, FetchInput{ID: "01MISSING"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing: expected NOT_FOUND, got %v", err)
	}
	if _, err := Fetch(database, FetchInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty id: expected INVALID_REQUEST, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	database := setupTestDB(t)
	seedSuggestions(t, database)

	out, err := Delete(database, DeleteInput{ID: "01EXP001"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !out.Deleted || out.ID != "01EXP001" {
		t.Errorf("Delete = %+v", out)
	}

	if _, err := Fetch(database, FetchInput{ID: "01EXP001"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Fetch after delete: expected NOT_FOUND, got %v", err)
	}
	if _, err := Delete(database, DeleteInput{ID: "01EXP001"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Delete: expected NOT_FOUND, got %v", err)
	}
	if _, err := Delete(database, DeleteInput{ID: "  "}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("blank id: expected INVALID_REQUEST, got %v", err)
	}
}
