package store

import "time"

// Lead is the database of record for a prospective patient. Its contact
// fields are ground truth and always win over AI-derived values.
type Lead struct {
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
	UpdatedAt         time.Time
}

// Note kinds. Canonical and memory rows carry their text-prefix tag in the
// body; the kind column exists so queries do not have to sniff prefixes.
const (
	NoteKindManual    = "manual"
	NoteKindCanonical = "canonical"
	NoteKindMemory    = "memory"
)

type Note struct {
	ID        string
	LeadID    string
	Author    string
	Kind      string
	Scope     string // set for memory notes only
	Body      string
	CreatedAt time.Time
}

type ContactAttempt struct {
	ID        string
	LeadID    string
	Channel   string // whatsapp, email, call
	Outcome   string
	CreatedAt time.Time
}

type TimelineEvent struct {
	ID        string
	LeadID    string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type AuditEvent struct {
	ID        int64
	EventType string
	LeadID    string
	Payload   map[string]any
	CreatedAt time.Time
}
