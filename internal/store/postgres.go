package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Leads

func (s *PostgresStore) InsertLead(ctx context.Context, lead Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, name, email, phone, source, status, treatment_interest, language, country, city)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Source, lead.Status, lead.TreatmentInterest, lead.Language, lead.Country, lead.City)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

const leadColumns = `id, name, email, phone, source, status, treatment_interest, language, country, city, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Source, &lead.Status,
		&lead.TreatmentInterest, &lead.Language, &lead.Country, &lead.City,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	return lead, err
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=$1`, leadID)
	return scanLead(row)
}

func (s *PostgresStore) ListLeads(ctx context.Context, status string, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE leads SET status=$2, updated_at=NOW() WHERE id=$1
	`, leadID, status)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateLeadContact(ctx context.Context, leadID, name, email, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads SET name=$2, email=$3, phone=$4, updated_at=NOW() WHERE id=$1
	`, leadID, name, email, phone)
	if err != nil {
		return fmt.Errorf("update lead contact: %w", err)
	}
	return nil
}

// Notes

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_notes (id, lead_id, author, kind, scope, body)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, note.ID, note.LeadID, note.Author, note.Kind, note.Scope, note.Body)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

const noteColumns = `id, lead_id, author, kind, scope, body, created_at`

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var note Note
	err := row.Scan(&note.ID, &note.LeadID, &note.Author, &note.Kind, &note.Scope, &note.Body, &note.CreatedAt)
	return note, err
}

func (s *PostgresStore) ListNotes(ctx context.Context, leadID, kind string) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM lead_notes WHERE lead_id=$1`
	args := []any{leadID}
	if kind != "" {
		query += ` AND kind=$2`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// LatestCanonicalNote returns the newest canonical note row for a lead, or
// nil when the lead has never been normalized.
func (s *PostgresStore) LatestCanonicalNote(ctx context.Context, leadID string) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM lead_notes
		WHERE lead_id=$1 AND kind=$2
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID, NoteKindCanonical)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest canonical note: %w", err)
	}
	return &note, nil
}

// ReplaceMemoryNote swaps the stored memory projection for one scope.
// Memories are rebuilt wholesale on every canonical run, never merged.
func (s *PostgresStore) ReplaceMemoryNote(ctx context.Context, note Note) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM lead_notes WHERE lead_id=$1 AND kind=$2 AND scope=$3
	`, note.LeadID, NoteKindMemory, note.Scope); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete old memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lead_notes (id, lead_id, author, kind, scope, body)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, note.ID, note.LeadID, note.Author, NoteKindMemory, note.Scope, note.Body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMemoryNote(ctx context.Context, leadID, scope string) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM lead_notes
		WHERE lead_id=$1 AND kind=$2 AND scope=$3
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID, NoteKindMemory, scope)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory note: %w", err)
	}
	return &note, nil
}

// Contact attempts and timeline

func (s *PostgresStore) InsertContactAttempt(ctx context.Context, attempt ContactAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_attempts (id, lead_id, channel, outcome)
		VALUES ($1, $2, $3, $4)
	`, attempt.ID, attempt.LeadID, attempt.Channel, attempt.Outcome)
	if err != nil {
		return fmt.Errorf("insert contact attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContactAttempts(ctx context.Context, leadID string) ([]ContactAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, channel, outcome, created_at
		FROM contact_attempts
		WHERE lead_id=$1
		ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list contact attempts: %w", err)
	}
	defer rows.Close()

	items := make([]ContactAttempt, 0)
	for rows.Next() {
		var item ContactAttempt
		if err := rows.Scan(&item.ID, &item.LeadID, &item.Channel, &item.Outcome, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact attempt: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact attempts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTimelineEvent(ctx context.Context, event TimelineEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timeline_events (id, lead_id, kind, detail)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.LeadID, event.Kind, event.Detail)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTimeline(ctx context.Context, leadID string) ([]TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, kind, detail, created_at
		FROM timeline_events
		WHERE lead_id=$1
		ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	items := make([]TimelineEvent, 0)
	for rows.Next() {
		var item TimelineEvent
		if err := rows.Scan(&item.ID, &item.LeadID, &item.Kind, &item.Detail, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return items, nil
}

// Audit

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, lead_id, payload)
		VALUES ($1, NULLIF($2, ''), $3)
	`, event.EventType, event.LeadID, payload)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Users and sessions

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email=$1 AND deactivated_at IS NULL
	`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id=$1 AND deactivated_at IS NULL
	`, userID)
	return scanUser(row)
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// SummaryCounts reports total leads, leads awaiting first contact, and
// canonical notes written, for the staff dashboard.
func (s *PostgresStore) SummaryCounts(ctx context.Context) (leads, fresh, canonicals int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM leads),
			(SELECT COUNT(*) FROM leads WHERE status='new'),
			(SELECT COUNT(*) FROM lead_notes WHERE kind='canonical')
	`).Scan(&leads, &fresh, &canonicals)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summary counts: %w", err)
	}
	return leads, fresh, canonicals, nil
}
