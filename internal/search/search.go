// Package search indexes leads for the CRM list view. Meilisearch serves
// queries when reachable; PostgreSQL full-text search is the fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Status            string `json:"status"`
	Source            string `json:"source"`
	TreatmentInterest string `json:"treatmentInterest"`
	Country           string `json:"country"`
	City              string `json:"city"`
	Snippet           string `json:"snippet,omitempty"`
}

// Query describes a search request. CanSeePII mirrors the caller's role
// scope; when false, contact fields are stripped from the results.
type Query struct {
	Text         string
	FilterStatus string
	FilterSource string
	Limit        int
	Offset       int
	CanSeePII    bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over leads.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push leads into a search index.
type Indexer interface {
	IndexLead(lead LeadRecord) error
	DeleteLead(id string) error
}

// LeadRecord is the data we index for a lead.
type LeadRecord struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Status            string `json:"status"`
	Source            string `json:"source"`
	TreatmentInterest string `json:"treatmentInterest"`
	Country           string `json:"country"`
	City              string `json:"city"`
}
