// Package export renders a lead's canonical summary as a PDF handout,
// used for doctor case reviews and patient treatment plans.
package export

import "errors"

// Format represents the export output format
type Format string

const FormatPDF Format = "pdf"

// Request contains parameters for an export operation
type Request struct {
	LeadID string
	Format Format
	// ViewerCanSeePII controls whether contact details appear in the output.
	ViewerCanSeePII bool
	// ViewerCanSeeInternalNotes controls whether open questions, missing
	// fields, and the action script are included.
	ViewerCanSeeInternalNotes bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates the lead has no canonical summary yet.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
