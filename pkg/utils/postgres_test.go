package utils

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert card: %w", &pgconn.PgError{Code: "23505", ConstraintName: "pipeline_cards_open_unique"})

	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "pipeline_cards_open_unique") {
		t.Fatalf("expected named constraint match")
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Fatalf("expected mismatch on other constraint")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatalf("plain error is not a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation is not a unique violation")
	}
}

func TestNullStringRoundTrip(t *testing.T) {
	if NullString(nil).Valid {
		t.Fatalf("nil must map to NULL")
	}
	empty := ""
	if NullString(&empty).Valid {
		t.Fatalf("empty id must map to NULL")
	}
	id := "q1"
	ns := NullString(&id)
	if !ns.Valid || ns.String != "q1" {
		t.Fatalf("unexpected null string: %+v", ns)
	}
	back := StringPtr(ns)
	if back == nil || *back != "q1" {
		t.Fatalf("unexpected pointer: %v", back)
	}
	if StringPtr(sql.NullString{}) != nil {
		t.Fatalf("NULL must map to nil")
	}
}
