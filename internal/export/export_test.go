package export

import (
	"context"
	"strings"
	"testing"

	"denticlinic/api/internal/canonical"
	"denticlinic/api/internal/store"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Lead summary Elif Aksoy", "Lead-summary-Elif-Aksoy"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "lead-summary"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func intPtr(v int) *int { return &v }

func testSnapshot() *canonical.Canonical {
	return &canonical.Canonical{V11: &canonical.V11{
		Version: "1.1",
		LeadID:  "ld_exp",
		Facts: &canonical.Facts{
			Name:       "Elif Aksoy",
			Phone:      "+90 532 111 22 33",
			Email:      "elif@example.com",
			Budget:     "6000 EUR",
			TimeWindow: "October",
		},
		EventsSummary: []string{"Asked for an implant quote"},
		NextBestAction: canonical.NextAction{
			Label:    "Send treatment plan",
			Channel:  "whatsapp",
			DueHours: 24,
			Script:   []string{"Confirm the quote at elif@example.com"},
		},
		MissingFields: []string{"travel_date"},
		OpenQuestions: []string{"Sedation preference?"},
		RiskScore:     intPtr(35),
		Confidence:    intPtr(80),
	}}
}

func testLead() store.Lead {
	return store.Lead{
		ID:     "ld_exp",
		Name:   "Elif Aksoy",
		Phone:  "+90 532 111 22 33",
		Email:  "elif@example.com",
		Status: "quoted",
	}
}

func TestBuildTemplateDataFullAccess(t *testing.T) {
	data := buildTemplateData(testLead(), testSnapshot(), Request{
		LeadID:                    "ld_exp",
		Format:                    FormatPDF,
		ViewerCanSeePII:           true,
		ViewerCanSeeInternalNotes: true,
	})

	if data.Name != "Elif Aksoy" || data.Phone == "" || data.Email == "" {
		t.Errorf("PII viewer should see contact block, got %+v", data)
	}
	if len(data.OpenQuestions) != 1 || len(data.MissingFields) != 1 {
		t.Error("internal viewer should see open questions and missing fields")
	}
	if data.ActionDue != "within 24h" {
		t.Errorf("unexpected due formatting %q", data.ActionDue)
	}
	if data.RiskScore != "35" || data.Confidence != "80" {
		t.Errorf("unexpected scores %q / %q", data.RiskScore, data.Confidence)
	}
}

func TestBuildTemplateDataRestrictedViewer(t *testing.T) {
	data := buildTemplateData(testLead(), testSnapshot(), Request{
		LeadID: "ld_exp",
		Format: FormatPDF,
	})

	if data.Name != "" || data.Phone != "" || data.Email != "" {
		t.Errorf("restricted viewer must not see contact block, got %+v", data)
	}
	for _, fact := range data.Facts {
		if fact.Key == "name" || fact.Key == "phone" || fact.Key == "email" {
			t.Errorf("restricted viewer must not see fact %q", fact.Key)
		}
	}
	if len(data.OpenQuestions) != 0 || len(data.MissingFields) != 0 {
		t.Error("restricted viewer must not see internal sections")
	}
	for _, line := range data.ActionScript {
		if strings.Contains(line, "elif@example.com") {
			t.Errorf("script line leaks contact details: %q", line)
		}
	}
}

func TestRenderSummaryHTML(t *testing.T) {
	data := buildTemplateData(testLead(), testSnapshot(), Request{
		LeadID:                    "ld_exp",
		Format:                    FormatPDF,
		ViewerCanSeePII:           true,
		ViewerCanSeeInternalNotes: true,
	})

	html, err := RenderSummaryHTML(data)
	if err != nil {
		t.Fatalf("RenderSummaryHTML() error = %v", err)
	}

	for _, want := range []string{"Elif Aksoy", "6000 EUR", "Send treatment plan", "Sedation preference?", "ld_exp"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

type fakeExportStore struct {
	lead store.Lead
	note *store.Note
}

func (f *fakeExportStore) GetLead(_ context.Context, _ string) (store.Lead, error) {
	return f.lead, nil
}

func (f *fakeExportStore) LatestCanonicalNote(_ context.Context, _ string) (*store.Note, error) {
	return f.note, nil
}

func TestExportWithoutCanonicalNote(t *testing.T) {
	svc := NewService(&fakeExportStore{lead: testLead()})

	_, err := svc.Export(context.Background(), Request{LeadID: "ld_exp", Format: FormatPDF})
	if err == nil || !strings.Contains(err.Error(), "no canonical summary") {
		t.Fatalf("expected content unavailable error, got %v", err)
	}
}
