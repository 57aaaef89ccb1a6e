// Package memvault projects a canonical snapshot into role-scoped memory
// views. Each scope sees a different slice of the snapshot: patient memory
// must never carry contact details, doctor memory adds ground-truth contact
// fields, internal memory adds operational detail on top.
package memvault

import (
	"fmt"
	"strings"
	"time"

	"denticlinic/api/internal/canonical"
	"denticlinic/api/internal/canonical/diff"
	"denticlinic/api/internal/firewall"
)

const (
	ScopePatient  = "patient"
	ScopeDoctor   = "doctor"
	ScopeInternal = "internal"
)

// NoMemoryAvailable is what ContextPack returns when no memory exists for a
// lead, so downstream prompt assembly never deals with nil.
const NoMemoryAvailable = "No memory available"

var ErrMalformedCanonical = fmt.Errorf("memvault: canonical snapshot has no facts")

// Fact is one key/value pair in a scoped memory, with the snapshot's
// confidence attached.
type Fact struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
}

type Safety struct {
	PIIRedacted       bool `json:"pii_redacted"`
	InjectionDetected bool `json:"injection_detected"`
}

// MemoryV1 is one scoped derivative of a canonical snapshot. It is rebuilt
// on every run and never merged across runs.
type MemoryV1 struct {
	Scope          string                `json:"scope"`
	LeadID         string                `json:"lead_id"`
	UpdatedAt      time.Time             `json:"updated_at"`
	RunHash        string                `json:"run_hash,omitempty"`
	Facts          []Fact                `json:"facts"`
	EventsSummary  []string              `json:"events_summary,omitempty"`
	Preferences    []string              `json:"preferences,omitempty"`
	Constraints    []string              `json:"constraints,omitempty"`
	NextBestAction *canonical.NextAction `json:"next_best_action,omitempty"`
	OpenQuestions  []string              `json:"open_questions,omitempty"`
	MissingFields  []string              `json:"missing_fields,omitempty"`
	Safety         Safety                `json:"safety"`
	Sources        canonical.Sources     `json:"sources"`
}

// Scopes lists every projection rebuilt after a canonical run.
func Scopes() []string {
	return []string{ScopePatient, ScopeDoctor, ScopeInternal}
}

// Build derives the memory for one scope from a canonical snapshot.
// A v1.1 snapshot without facts fails fast: an empty memory would be
// indistinguishable from "no information" and would mask builder bugs.
func Build(c *canonical.Canonical, truth diff.GroundTruth, scope string) (MemoryV1, error) {
	if c == nil || (c.V10 == nil && c.V11 == nil) {
		return MemoryV1{}, ErrMalformedCanonical
	}
	if c.V11 != nil && c.V11.Facts == nil {
		return MemoryV1{}, ErrMalformedCanonical
	}

	confidence, _ := c.Confidence()
	facts := c.FactMap()

	memory := MemoryV1{
		Scope:         scope,
		LeadID:        c.LeadID(),
		UpdatedAt:     time.Now().UTC(),
		EventsSummary: scrubAll(c.EventsSummary()),
		OpenQuestions: c.OpenQuestions(),
		MissingFields: c.MissingFields(),
		Safety:        safetyFor(c, scope),
	}
	if c.V11 != nil {
		memory.Sources = c.V11.Sources
	}

	addFact := func(key string) {
		if value, ok := facts[key]; ok {
			memory.Facts = append(memory.Facts, Fact{Key: key, Value: value, Confidence: confidence})
		}
	}
	addTruthFact := func(key, dbValue string) {
		value := dbValue
		if value == "" {
			value = facts[key]
		}
		if value != "" {
			memory.Facts = append(memory.Facts, Fact{Key: key, Value: value, Confidence: 100})
		}
	}

	switch scope {
	case ScopePatient:
		addFact("treatment_interest")
		addFact("budget")
		addFact("time_window")
		addFact("objections")
	case ScopeDoctor:
		addTruthFact("name", truth.Name)
		addTruthFact("phone", truth.Phone)
		addTruthFact("email", truth.Email)
		addFact("treatment_interest")
		addFact("budget")
		addFact("time_window")
		addFact("objections")
	case ScopeInternal:
		addTruthFact("name", truth.Name)
		addTruthFact("phone", truth.Phone)
		addTruthFact("email", truth.Email)
		addTruthFact("source", truth.Source)
		addFact("language")
		addFact("country")
		addFact("city")
		addFact("treatment_interest")
		addFact("budget")
		addFact("time_window")
		addFact("objections")
	default:
		return MemoryV1{}, fmt.Errorf("memvault: unknown scope %q", scope)
	}

	memory.Preferences = preferences(c, facts)
	memory.Constraints = constraints(c, facts)
	memory.NextBestAction = projectAction(c.NextAction(), scope)

	return memory, nil
}

func safetyFor(c *canonical.Canonical, scope string) Safety {
	safety := Safety{}
	if c.V11 != nil && c.V11.Security != nil {
		safety.InjectionDetected = c.V11.Security.Firewall.InjectionDetected
		safety.PIIRedacted = c.V11.Security.Firewall.EmailsRedacted > 0 || c.V11.Security.Firewall.PhonesRedacted > 0
	}
	if scope == ScopePatient {
		safety.PIIRedacted = true
	}
	return safety
}

// projectAction copies the action verbatim for staff scopes and scrubs
// contact patterns out of the script for patient scope. This is the patient
// projection's core privacy guarantee.
func projectAction(action canonical.NextAction, scope string) *canonical.NextAction {
	if action.Label == "" && len(action.Script) == 0 {
		return nil
	}
	projected := action
	projected.Script = append([]string(nil), action.Script...)
	if scope == ScopePatient {
		for i, line := range projected.Script {
			projected.Script[i] = firewall.MaskContacts(line)
		}
	}
	return &projected
}

func preferences(c *canonical.Canonical, facts map[string]string) []string {
	var prefs []string
	if value, ok := facts["preferences"]; ok {
		for _, p := range strings.Split(value, ";") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				prefs = append(prefs, trimmed)
			}
		}
	}
	if channel := c.NextAction().Channel; channel != "" {
		prefs = append(prefs, "prefers contact via "+channel)
	}
	return prefs
}

func constraints(c *canonical.Canonical, facts map[string]string) []string {
	var out []string
	if budget, ok := facts["budget"]; ok {
		out = append(out, "budget: "+budget)
	}
	if window, ok := facts["time_window"]; ok {
		out = append(out, "time window: "+window)
	}
	for _, field := range c.MissingFields() {
		out = append(out, "unknown: "+field)
	}
	if objections, ok := facts["objections"]; ok {
		out = append(out, "objections: "+objections)
	}
	return out
}

func scrubAll(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = firewall.MaskContacts(line)
	}
	return out
}
