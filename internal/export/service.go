package export

import (
	"context"
	"fmt"
	"sort"

	"denticlinic/api/internal/canonical"
	"denticlinic/api/internal/firewall"
	"denticlinic/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetLead(ctx context.Context, leadID string) (store.Lead, error)
	LatestCanonicalNote(ctx context.Context, leadID string) (*store.Note, error)
}

// Service provides lead summary export functionality
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	lead, err := s.store.GetLead(ctx, req.LeadID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}

	note, err := s.store.LatestCanonicalNote(ctx, req.LeadID)
	if err != nil {
		return nil, fmt.Errorf("latest canonical note: %w", err)
	}
	if note == nil {
		return nil, fmt.Errorf("%w: lead %s has no canonical summary", ErrContentUnavailable, req.LeadID)
	}

	snapshot, err := canonical.DecodeNote(note.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	data := buildTemplateData(lead, snapshot, req)

	html, err := RenderSummaryHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, data.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func buildTemplateData(lead store.Lead, snapshot *canonical.Canonical, req Request) TemplateData {
	title := "Lead summary"
	if req.ViewerCanSeePII && lead.Name != "" {
		title = "Lead summary " + lead.Name
	}

	data := TemplateData{
		Title:         title,
		LeadID:        lead.ID,
		Status:        lead.Status,
		Version:       snapshot.Version(),
		EventsSummary: snapshot.EventsSummary(),
	}

	if req.ViewerCanSeePII {
		data.Name = lead.Name
		data.Phone = lead.Phone
		data.Email = lead.Email
	}

	facts := snapshot.FactMap()
	for _, key := range sortedFactKeys(facts) {
		if !req.ViewerCanSeePII && (key == "name" || key == "phone" || key == "email") {
			continue
		}
		data.Facts = append(data.Facts, TemplateFact{Key: key, Value: facts[key]})
	}

	if risk, ok := snapshot.RiskScore(); ok {
		data.RiskScore = fmt.Sprintf("%d", risk)
	}
	if confidence, ok := snapshot.Confidence(); ok {
		data.Confidence = fmt.Sprintf("%d", confidence)
	}

	action := snapshot.NextAction()
	data.ActionLabel = action.Label
	data.ActionChannel = action.Channel
	if action.DueHours > 0 {
		data.ActionDue = fmt.Sprintf("within %dh", action.DueHours)
	}

	if req.ViewerCanSeeInternalNotes {
		data.MissingFields = snapshot.MissingFields()
		data.OpenQuestions = snapshot.OpenQuestions()
		data.ActionScript = action.Script
	} else {
		// Scripts can quote contact details even in a PII-trimmed export.
		for _, line := range action.Script {
			data.ActionScript = append(data.ActionScript, firewall.MaskContacts(line))
		}
	}

	return data
}

func sortedFactKeys(facts map[string]string) []string {
	keys := make([]string, 0, len(facts))
	for key := range facts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
