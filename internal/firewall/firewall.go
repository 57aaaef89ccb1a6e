// Package firewall detects and masks contact information and prompt
// injection phrasing in free-text lead notes. Reports carry counts and
// masked samples only, never the raw matches.
package firewall

import (
	"regexp"
	"strings"
)

const Placeholder = "[redacted]"

// maxSamples bounds how many masked matches a report keeps per category.
const maxSamples = 3

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// International and local formats: +90 555 123 45 67, 555-123-4567, (555) 123 4567.
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{6,}\d`)
)

var injectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard the above",
	"disregard previous instructions",
	"you are now",
	"system prompt",
	"reveal your instructions",
	"forget everything",
}

// Report summarizes what the filter found in one piece of text.
type Report struct {
	Emails            int      `json:"emails"`
	Phones            int      `json:"phones"`
	EmailSamples      []string `json:"email_samples,omitempty"`
	PhoneSamples      []string `json:"phone_samples,omitempty"`
	InjectionDetected bool     `json:"injection_detected"`
}

func (r Report) Clean() bool {
	return r.Emails == 0 && r.Phones == 0 && !r.InjectionDetected
}

// Scan inspects text for contact patterns and injection phrasing. It never
// panics: on any internal failure it returns a zero report, preferring to
// keep the pipeline running over crashing on pathological input.
func Scan(text string) (report Report) {
	defer func() {
		if recover() != nil {
			report = Report{}
		}
	}()

	emails := emailPattern.FindAllString(text, -1)
	report.Emails = len(emails)
	for _, match := range emails {
		if len(report.EmailSamples) >= maxSamples {
			break
		}
		report.EmailSamples = append(report.EmailSamples, maskSample(match))
	}

	phones := phonePattern.FindAllString(text, -1)
	report.Phones = len(phones)
	for _, match := range phones {
		if len(report.PhoneSamples) >= maxSamples {
			break
		}
		report.PhoneSamples = append(report.PhoneSamples, maskSample(match))
	}

	lowered := strings.ToLower(text)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lowered, phrase) {
			report.InjectionDetected = true
			break
		}
	}
	return report
}

// MaskContacts replaces every email and phone match in text with the fixed
// placeholder. Used to scrub action scripts before they reach patient scope.
// If the substitution itself fails, the whole text collapses to the
// placeholder rather than passing through unscrubbed.
func MaskContacts(text string) (masked string) {
	defer func() {
		if recover() != nil {
			masked = Placeholder
		}
	}()
	return replaceContacts(text)
}

var replaceContacts = func(text string) string {
	masked := emailPattern.ReplaceAllString(text, Placeholder)
	return phonePattern.ReplaceAllString(masked, Placeholder)
}

// ContainsContact reports whether text still carries an email or phone
// pattern. Tests and the memory vault use it as a final guard.
func ContainsContact(text string) bool {
	return emailPattern.MatchString(text) || phonePattern.MatchString(text)
}

// maskSample keeps the first and last character of a match so audit logs can
// distinguish entries without disclosing them.
func maskSample(match string) string {
	trimmed := strings.TrimSpace(match)
	if len(trimmed) <= 2 {
		return strings.Repeat("*", len(trimmed))
	}
	return trimmed[:1] + strings.Repeat("*", len(trimmed)-2) + trimmed[len(trimmed)-1:]
}
