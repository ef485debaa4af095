package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/AgentSquad/internal/domain"
)

func TestErrNotFound_MatchesDomain(t *testing.T) {
	err := fmt.Errorf("%w: execution", ErrNotFound)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Error("repo.ErrNotFound must match domain.ErrNotFound")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Error("expected unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
}

func TestJSONHelpers(t *testing.T) {
	data, err := marshalJSON(nil)
	if err != nil || data != nil {
		t.Errorf("nil map should marshal to NULL, got %s, %v", data, err)
	}

	data, err = marshalJSON(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("marshalJSON: %v", err)
	}
	m, err := unmarshalJSON(data, "field")
	if err != nil || m["k"] != "v" {
		t.Errorf("unexpected map %v, %v", m, err)
	}

	if _, err := unmarshalJSON([]byte("{"), "field"); err == nil {
		t.Error("expected error for broken JSON")
	}
}

func TestNullHelpers(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should be NULL")
	}
	if s := nullString("x"); s == nil || *s != "x" {
		t.Error("non-empty string should be kept")
	}
	if nullUUID(uuid.Nil) != nil {
		t.Error("nil uuid should be NULL")
	}
	id := uuid.New()
	if p := nullUUID(id); p == nil || *p != id {
		t.Error("uuid should be kept")
	}
	if nonNil(nil) == nil {
		t.Error("nil slice should become empty")
	}
}

func TestRolesToStrings(t *testing.T) {
	got := rolesToStrings([]domain.Role{domain.RoleArchitect, domain.RoleReviewer})
	if len(got) != 2 || got[0] != "architect" || got[1] != "reviewer" {
		t.Errorf("unexpected roles: %v", got)
	}
}
