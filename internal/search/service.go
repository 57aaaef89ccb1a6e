package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
// Results are stripped of contact fields unless the caller may see PII.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: sanitizeResults(nonNil(results), q.CanSeePII), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: sanitizeResults(nonNil(results), q.CanSeePII), Total: total, Query: q.Text}
}

// IndexLead indexes a lead (fire-and-forget to Meilisearch).
func (s *Service) IndexLead(lead LeadRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexLead(lead); err != nil {
			log.Printf("search: index lead %s: %v", lead.ID, err)
		}
	}()
}

// DeleteLead removes a lead from the search index (fire-and-forget).
func (s *Service) DeleteLead(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteLead(id); err != nil {
			log.Printf("search: delete lead %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all leads from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	leads, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(leads) == 0 {
		return
	}
	if err := s.meili.IndexLeads(leads); err != nil {
		log.Printf("search: reindex leads: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// sanitizeResults blanks contact details for callers without PII access.
func sanitizeResults(results []Result, canSeePII bool) []Result {
	if canSeePII {
		return results
	}
	sanitized := make([]Result, 0, len(results))
	for _, result := range results {
		result.Email = ""
		result.Phone = ""
		sanitized = append(sanitized, result)
	}
	return sanitized
}
