// Package audit emits privacy-safe telemetry for AI runs. Payloads carry
// counts, enums, and short labels only, never note text or contact details.
// Emission is best-effort: a telemetry failure must never abort the
// operation it describes.
package audit

import (
	"context"
	"log"

	"denticlinic/api/internal/store"
)

const (
	EventAIAudit              = "ai_audit"
	EventAIFirewall           = "ai_firewall"
	EventAIMemorySync         = "ai_memory_sync"
	EventAuthSessionRecovered = "auth_session_recovered"
	EventLeadIntake           = "lead_intake"
)

type recorder interface {
	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
}

type Emitter struct {
	store recorder
}

func New(store recorder) *Emitter {
	return &Emitter{store: store}
}

// RunSummary describes one canonical-note run.
type RunSummary struct {
	LeadID         string
	Version        string
	Added          int
	Updated        int
	Removed        int
	Conflicts      int
	NotesUsed      int
	ReviewRequired bool
	HasRisk        bool
}

func (e *Emitter) AIAudit(ctx context.Context, summary RunSummary) {
	e.emit(ctx, EventAIAudit, summary.LeadID, map[string]any{
		"version":         summary.Version,
		"added":           summary.Added,
		"updated":         summary.Updated,
		"removed":         summary.Removed,
		"conflicts":       summary.Conflicts,
		"notes_used":      summary.NotesUsed,
		"review_required": summary.ReviewRequired,
		"has_risk":        summary.HasRisk,
	})
}

// FirewallHit is emitted only when redaction or injection detection fired.
type FirewallHit struct {
	LeadID            string
	Emails            int
	Phones            int
	InjectionDetected bool
}

func (e *Emitter) AIFirewall(ctx context.Context, hit FirewallHit) {
	if hit.Emails == 0 && hit.Phones == 0 && !hit.InjectionDetected {
		return
	}
	e.emit(ctx, EventAIFirewall, hit.LeadID, map[string]any{
		"emails":             hit.Emails,
		"phones":             hit.Phones,
		"injection_detected": hit.InjectionDetected,
	})
}

// MemorySync describes one rebuilt scope projection.
type MemorySync struct {
	LeadID        string
	Scope         string
	Facts         int
	OpenQuestions int
	MissingFields int
}

func (e *Emitter) AIMemorySync(ctx context.Context, sync MemorySync) {
	e.emit(ctx, EventAIMemorySync, sync.LeadID, map[string]any{
		"scope":          sync.Scope,
		"facts":          sync.Facts,
		"open_questions": sync.OpenQuestions,
		"missing_fields": sync.MissingFields,
	})
}

// LeadIntake records the arrival channel only; the form contents stay out.
func (e *Emitter) LeadIntake(ctx context.Context, leadID, source string) {
	e.emit(ctx, EventLeadIntake, leadID, map[string]any{"source": source})
}

func (e *Emitter) AuthSessionRecovered(ctx context.Context, userID string) {
	e.emit(ctx, EventAuthSessionRecovered, "", map[string]any{"user_id": userID})
}

func (e *Emitter) emit(ctx context.Context, eventType, leadID string, payload map[string]any) {
	if e == nil || e.store == nil {
		return
	}
	err := e.store.InsertAuditEvent(ctx, store.AuditEvent{
		EventType: eventType,
		LeadID:    leadID,
		Payload:   payload,
	})
	if err != nil {
		log.Printf("audit: dropped %s event: %v", eventType, err)
	}
}
