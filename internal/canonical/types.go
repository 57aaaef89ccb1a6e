// Package canonical defines the versioned AI snapshot schema for a lead,
// the narrowing parser over both schema versions, and the text-prefix wire
// format used to store snapshots in the notes table.
package canonical

import (
	"errors"
	"strings"
	"time"
)

const (
	VersionV10 = "1.0"
	VersionV11 = "1.1"
)

var (
	ErrParse      = errors.New("canonical: response did not contain a valid snapshot")
	ErrValidation = errors.New("canonical: snapshot is missing required identity fields")
)

// V10 is the first canonical snapshot schema.
type V10 struct {
	Version           string         `json:"version"`
	LeadID            string         `json:"leadId"`
	Summary           string         `json:"summary"`
	Bullets           []string       `json:"bullets,omitempty"`
	Status            string         `json:"status,omitempty"`
	Priority          string         `json:"priority,omitempty"` // hot, warm, cool
	RiskScore         int            `json:"riskScore"`
	Confidence        int            `json:"confidence"`
	Intent            string         `json:"intent,omitempty"`
	TreatmentInterest []string       `json:"treatmentInterest,omitempty"`
	Objections        []string       `json:"objections,omitempty"`
	Constraints       V10Constraints `json:"constraints"`
	NextBestAction    V10NextAction  `json:"nextBestAction"`
	MissingFields     []string       `json:"missingFields,omitempty"`
	Evidence          V10Evidence    `json:"evidence"`
}

type V10Constraints struct {
	Budget     string `json:"budget,omitempty"`
	Timeline   string `json:"timeline,omitempty"`
	TravelDate string `json:"travelDate,omitempty"`
}

type V10NextAction struct {
	Label    string   `json:"label,omitempty"`
	DueHours int      `json:"dueHours,omitempty"`
	Script   []string `json:"script,omitempty"`
}

type V10Evidence struct {
	LastContactChannel string     `json:"lastContactChannel,omitempty"`
	LastActivityAt     *time.Time `json:"lastActivityAt,omitempty"`
	NotesConsulted     int        `json:"notesConsulted"`
}

// V11 restructures the same information around a facts block and adds the
// security/firewall record.
type V11 struct {
	Version        string     `json:"version"`
	LeadID         string     `json:"lead_id"`
	Facts          *Facts     `json:"facts"`
	EventsSummary  []string   `json:"events_summary,omitempty"`
	NextBestAction NextAction `json:"next_best_action"`
	MissingFields  []string   `json:"missing_fields,omitempty"`
	OpenQuestions  []string   `json:"open_questions,omitempty"`
	RiskScore      *int       `json:"risk_score"`
	Confidence     *int       `json:"confidence"`
	Changelog      []string   `json:"changelog,omitempty"`
	Sources        Sources    `json:"sources"`
	ReviewRequired bool       `json:"review_required"`
	ReviewReasons  []string   `json:"review_reasons,omitempty"`
	Security       *Security  `json:"security,omitempty"`
}

type Facts struct {
	Name              string   `json:"name,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	Email             string   `json:"email,omitempty"`
	Source            string   `json:"source,omitempty"`
	Language          string   `json:"language,omitempty"`
	Country           string   `json:"country,omitempty"`
	City              string   `json:"city,omitempty"`
	TreatmentInterest []string `json:"treatment_interest,omitempty"`
	Budget            string   `json:"budget,omitempty"`
	TimeWindow        string   `json:"time_window,omitempty"`
	Objections        []string `json:"objections,omitempty"`
	Preferences       []string `json:"preferences,omitempty"`
}

type NextAction struct {
	Label    string   `json:"label,omitempty"`
	DueHours int      `json:"due_hours,omitempty"`
	Channel  string   `json:"channel,omitempty"` // whatsapp, email, call
	Script   []string `json:"script,omitempty"`
}

type Sources struct {
	NotesUsed    int `json:"notes_used"`
	EventsUsed   int `json:"events_used"`
	ContactsUsed int `json:"contacts_used"`
}

type Security struct {
	Firewall Firewall `json:"firewall"`
}

type Firewall struct {
	EmailsRedacted    int      `json:"emails_redacted"`
	PhonesRedacted    int      `json:"phones_redacted"`
	Samples           []string `json:"samples,omitempty"`
	InjectionDetected bool     `json:"injection_detected"`
}

// Canonical is the tagged union over the two schema versions. Exactly one of
// the branches is set.
type Canonical struct {
	V10 *V10
	V11 *V11
}

func FromV10(v *V10) *Canonical { return &Canonical{V10: v} }
func FromV11(v *V11) *Canonical { return &Canonical{V11: v} }

func (c *Canonical) Version() string {
	switch {
	case c == nil:
		return ""
	case c.V11 != nil:
		return VersionV11
	case c.V10 != nil:
		return VersionV10
	}
	return ""
}

func (c *Canonical) LeadID() string {
	switch {
	case c == nil:
		return ""
	case c.V11 != nil:
		return c.V11.LeadID
	case c.V10 != nil:
		return c.V10.LeadID
	}
	return ""
}

// FactMap flattens either version's summary state into comparable key/value
// pairs. Keys follow the v1.1 fact names; v1.0 contributes the subset it
// carries (it predates contact facts, so phone/email never appear for it).
func (c *Canonical) FactMap() map[string]string {
	facts := map[string]string{}
	if c == nil {
		return facts
	}
	put := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			facts[key] = value
		}
	}
	if c.V11 != nil {
		f := c.V11.Facts
		if f == nil {
			return facts
		}
		put("name", f.Name)
		put("phone", f.Phone)
		put("email", f.Email)
		put("source", f.Source)
		put("language", f.Language)
		put("country", f.Country)
		put("city", f.City)
		put("treatment_interest", strings.Join(f.TreatmentInterest, ", "))
		put("budget", f.Budget)
		put("time_window", f.TimeWindow)
		put("objections", strings.Join(f.Objections, "; "))
		put("preferences", strings.Join(f.Preferences, "; "))
		return facts
	}
	if c.V10 != nil {
		v := c.V10
		put("status", v.Status)
		put("priority", v.Priority)
		put("intent", v.Intent)
		put("treatment_interest", strings.Join(v.TreatmentInterest, ", "))
		put("budget", v.Constraints.Budget)
		put("time_window", v.Constraints.Timeline)
		put("travel_date", v.Constraints.TravelDate)
		put("objections", strings.Join(v.Objections, "; "))
	}
	return facts
}

func (c *Canonical) MissingFields() []string {
	switch {
	case c == nil:
		return nil
	case c.V11 != nil:
		return c.V11.MissingFields
	case c.V10 != nil:
		return c.V10.MissingFields
	}
	return nil
}

func (c *Canonical) OpenQuestions() []string {
	if c != nil && c.V11 != nil {
		return c.V11.OpenQuestions
	}
	return nil
}

// RiskScore returns the risk value and whether one is present. v1.1 models
// absence as null; v1.0 always carries a value.
func (c *Canonical) RiskScore() (int, bool) {
	switch {
	case c == nil:
		return 0, false
	case c.V11 != nil:
		if c.V11.RiskScore == nil {
			return 0, false
		}
		return *c.V11.RiskScore, true
	case c.V10 != nil:
		return c.V10.RiskScore, true
	}
	return 0, false
}

func (c *Canonical) Confidence() (int, bool) {
	switch {
	case c == nil:
		return 0, false
	case c.V11 != nil:
		if c.V11.Confidence == nil {
			return 0, false
		}
		return *c.V11.Confidence, true
	case c.V10 != nil:
		return c.V10.Confidence, true
	}
	return 0, false
}

// NextAction presents either version's next-best-action in the v1.1 shape.
// v1.0 has no channel field.
func (c *Canonical) NextAction() NextAction {
	switch {
	case c == nil:
		return NextAction{}
	case c.V11 != nil:
		return c.V11.NextBestAction
	case c.V10 != nil:
		a := c.V10.NextBestAction
		return NextAction{Label: a.Label, DueHours: a.DueHours, Script: a.Script}
	}
	return NextAction{}
}

// EventsSummary returns the PII-free activity lines. v1.0 predates the
// dedicated field, so its bullets stand in.
func (c *Canonical) EventsSummary() []string {
	switch {
	case c == nil:
		return nil
	case c.V11 != nil:
		return c.V11.EventsSummary
	case c.V10 != nil:
		return c.V10.Bullets
	}
	return nil
}
