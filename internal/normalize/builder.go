// Package normalize turns a lead's raw notes, contact attempts, and
// timeline into one canonical snapshot via a single completion call.
package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"denticlinic/api/internal/canonical"
	"denticlinic/api/internal/firewall"
)

// maxNotes bounds how many recent notes enter the prompt, capping token
// cost and latency.
const maxNotes = 10

// Completer is the seam to the external text-completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LeadCore is the lead's database-of-record state at normalization time.
type LeadCore struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	Source            string
	Status            string
	TreatmentInterest string
	Language          string
	Country           string
	City              string
	CreatedAt         time.Time
}

type NoteInput struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

type ContactInput struct {
	Channel   string
	Outcome   string
	CreatedAt time.Time
}

type EventInput struct {
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Bundle is the normalized input for one canonical run.
type Bundle struct {
	Lead     LeadCore
	Notes    []NoteInput
	Contacts []ContactInput
	Timeline []EventInput
}

type Builder struct {
	completer Completer
}

func New(completer Completer) *Builder {
	return &Builder{completer: completer}
}

// Build runs the full pipeline: firewall scan over the note text, one
// bounded prompt, one completion call, defensive parse, identity check.
// A parse failure surfaces as an error; no snapshot is ever synthesized
// from partial data.
func (b *Builder) Build(ctx context.Context, bundle Bundle) (*canonical.Canonical, error) {
	notes := recentNotes(bundle.Notes)
	report := scanNotes(notes)

	prompt := buildPrompt(bundle, notes, report)
	raw, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}

	snapshot, err := canonical.ParseResponse(raw, bundle.Lead.ID)
	if err != nil {
		return nil, err
	}

	if snapshot.V11 != nil {
		annotate(snapshot.V11, bundle, notes, report)
	}
	return snapshot, nil
}

// annotate fills the server-owned v1.1 fields the model is not trusted
// with: provenance counts, the firewall record, and review flags.
func annotate(v *canonical.V11, bundle Bundle, notes []NoteInput, report firewall.Report) {
	v.Sources = canonical.Sources{
		NotesUsed:    len(notes),
		EventsUsed:   len(bundle.Timeline),
		ContactsUsed: len(bundle.Contacts),
	}
	if !report.Clean() {
		v.Security = &canonical.Security{Firewall: canonical.Firewall{
			EmailsRedacted:    report.Emails,
			PhonesRedacted:    report.Phones,
			Samples:           append(report.EmailSamples, report.PhoneSamples...),
			InjectionDetected: report.InjectionDetected,
		}}
	}
	if report.InjectionDetected {
		v.ReviewRequired = true
		v.ReviewReasons = append(v.ReviewReasons, "possible prompt injection in source notes")
	}
	// Out-of-range scores are passed through unclamped but flagged for a
	// human, since the model contract says 0-100.
	scores := []struct {
		label string
		value *int
	}{
		{"risk_score", v.RiskScore},
		{"confidence", v.Confidence},
	}
	for _, s := range scores {
		if s.value != nil && (*s.value < 0 || *s.value > 100) {
			v.ReviewRequired = true
			v.ReviewReasons = append(v.ReviewReasons, fmt.Sprintf("%s out of range: %d", s.label, *s.value))
		}
	}
}

func recentNotes(notes []NoteInput) []NoteInput {
	if len(notes) <= maxNotes {
		return notes
	}
	return notes[len(notes)-maxNotes:]
}

func scanNotes(notes []NoteInput) firewall.Report {
	var joined strings.Builder
	for _, note := range notes {
		joined.WriteString(note.Body)
		joined.WriteByte('\n')
	}
	return firewall.Scan(joined.String())
}
