package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// These tests run against a real Postgres and are skipped unless
// DENTICLINIC_TEST_DATABASE_URL is set.

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("DENTICLINIC_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DENTICLINIC_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestLatestCanonicalNoteOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertLead(ctx, Lead{ID: "ld_int1", Name: "Test", Status: "new"}); err != nil {
		t.Fatalf("insert lead: %v", err)
	}

	if latest, err := s.LatestCanonicalNote(ctx, "ld_int1"); err != nil || latest != nil {
		t.Fatalf("expected no canonical note, got %v err %v", latest, err)
	}

	notes := []Note{
		{ID: "nt_1", LeadID: "ld_int1", Author: "ai", Kind: NoteKindCanonical, Body: "first"},
		{ID: "nt_2", LeadID: "ld_int1", Author: "ozan", Kind: NoteKindManual, Body: "manual note"},
		{ID: "nt_3", LeadID: "ld_int1", Author: "ai", Kind: NoteKindCanonical, Body: "second"},
	}
	for _, n := range notes {
		if err := s.InsertNote(ctx, n); err != nil {
			t.Fatalf("insert note %s: %v", n.ID, err)
		}
		// created_at defaults to NOW(); keep insert order distinguishable.
		time.Sleep(10 * time.Millisecond)
	}

	latest, err := s.LatestCanonicalNote(ctx, "ld_int1")
	if err != nil {
		t.Fatalf("latest canonical: %v", err)
	}
	if latest == nil || latest.Body != "second" {
		t.Fatalf("expected latest canonical body %q, got %+v", "second", latest)
	}

	manual, err := s.ListNotes(ctx, "ld_int1", NoteKindManual)
	if err != nil {
		t.Fatalf("list manual notes: %v", err)
	}
	if len(manual) != 1 || manual[0].ID != "nt_2" {
		t.Fatalf("expected one manual note nt_2, got %+v", manual)
	}
}

func TestReplaceMemoryNotePerScope(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertLead(ctx, Lead{ID: "ld_int2", Status: "new"}); err != nil {
		t.Fatalf("insert lead: %v", err)
	}

	write := func(id, scope, body string) {
		t.Helper()
		err := s.ReplaceMemoryNote(ctx, Note{ID: id, LeadID: "ld_int2", Author: "ai", Kind: NoteKindMemory, Scope: scope, Body: body})
		if err != nil {
			t.Fatalf("replace memory %s: %v", scope, err)
		}
	}

	write("mn_1", "patient", "patient v1")
	write("mn_2", "doctor", "doctor v1")
	write("mn_3", "patient", "patient v2")

	got, err := s.GetMemoryNote(ctx, "ld_int2", "patient")
	if err != nil {
		t.Fatalf("get patient memory: %v", err)
	}
	if got == nil || got.Body != "patient v2" {
		t.Fatalf("expected replaced patient memory, got %+v", got)
	}

	doctor, err := s.GetMemoryNote(ctx, "ld_int2", "doctor")
	if err != nil {
		t.Fatalf("get doctor memory: %v", err)
	}
	if doctor == nil || doctor.Body != "doctor v1" {
		t.Fatalf("doctor scope must be untouched, got %+v", doctor)
	}

	all, err := s.ListNotes(ctx, "ld_int2", NoteKindMemory)
	if err != nil {
		t.Fatalf("list memory notes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected exactly one row per scope, got %d", len(all))
	}
}

func TestAuditEventPayloadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertAuditEvent(ctx, AuditEvent{
		EventType: "ai_audit",
		LeadID:    "",
		Payload:   map[string]any{"added": 2, "version": "1.1"},
	})
	if err != nil {
		t.Fatalf("insert audit event: %v", err)
	}

	var count int
	err = s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_events
		WHERE event_type='ai_audit' AND lead_id IS NULL AND payload->>'version'='1.1'
	`).Scan(&count)
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 audit event, got %d", count)
	}
}
