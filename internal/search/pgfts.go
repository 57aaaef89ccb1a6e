package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the leads table with plainto_tsquery ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "fts @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}
	if q.FilterSource != "" {
		where += fmt.Sprintf(" AND source = $%d", argN)
		args = append(args, q.FilterSource)
		argN++
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM leads WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, name, email, phone, status, source, treatment_interest, country, city
		FROM leads
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('simple', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &r.Status, &r.Source, &r.TreatmentInterest, &r.Country, &r.City); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all leads for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]LeadRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, phone, status, source, treatment_interest, country, city
		FROM leads
	`)
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	defer rows.Close()

	leads := make([]LeadRecord, 0)
	for rows.Next() {
		var l LeadRecord
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Status, &l.Source, &l.TreatmentInterest, &l.Country, &l.City); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}

	return leads, nil
}
