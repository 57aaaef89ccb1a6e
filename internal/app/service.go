package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"denticlinic/api/internal/audit"
	"denticlinic/api/internal/auth"
	"denticlinic/api/internal/authpw"
	"denticlinic/api/internal/blob"
	"denticlinic/api/internal/canoncache"
	"denticlinic/api/internal/canonical"
	"denticlinic/api/internal/canonical/diff"
	"denticlinic/api/internal/config"
	"denticlinic/api/internal/email"
	"denticlinic/api/internal/export"
	"denticlinic/api/internal/firewall"
	"denticlinic/api/internal/history"
	"denticlinic/api/internal/memvault"
	"denticlinic/api/internal/normalize"
	"denticlinic/api/internal/rbac"
	"denticlinic/api/internal/search"
	"denticlinic/api/internal/store"
	"denticlinic/api/internal/util"
	"denticlinic/api/internal/whatsapp"
)

// aiAuthor is the author recorded on machine-written note rows.
const aiAuthor = "ai-normalizer"

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type IntakeInput struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Source            string `json:"source"`
	TreatmentInterest string `json:"treatmentInterest"`
	Language          string `json:"language"`
	Country           string `json:"country"`
	City              string `json:"city"`
	Message           string `json:"message"`
}

type ContactAttemptInput struct {
	Channel string `json:"channel"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

var allowedLeadStatuses = map[string]struct{}{
	"new":         {},
	"contacted":   {},
	"qualified":   {},
	"quoted":      {},
	"scheduled":   {},
	"treated":     {},
	"closed_won":  {},
	"closed_lost": {},
}

var allowedContactChannels = map[string]struct{}{
	"whatsapp": {},
	"email":    {},
	"call":     {},
}

type dataStore interface {
	Ping(ctx context.Context) error
	InsertLead(ctx context.Context, lead store.Lead) error
	GetLead(ctx context.Context, leadID string) (store.Lead, error)
	ListLeads(ctx context.Context, status string, limit int) ([]store.Lead, error)
	UpdateLeadStatus(ctx context.Context, leadID, status string) error
	InsertNote(ctx context.Context, note store.Note) error
	ListNotes(ctx context.Context, leadID, kind string) ([]store.Note, error)
	LatestCanonicalNote(ctx context.Context, leadID string) (*store.Note, error)
	ReplaceMemoryNote(ctx context.Context, note store.Note) error
	GetMemoryNote(ctx context.Context, leadID, scope string) (*store.Note, error)
	InsertContactAttempt(ctx context.Context, attempt store.ContactAttempt) error
	ListContactAttempts(ctx context.Context, leadID string) ([]store.ContactAttempt, error)
	InsertTimelineEvent(ctx context.Context, event store.TimelineEvent) error
	ListTimeline(ctx context.Context, leadID string) ([]store.TimelineEvent, error)
	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	SummaryCounts(ctx context.Context) (leads, fresh, canonicals int, err error)
}

// sessionStore holds refresh sessions. Redis serves it in production; the
// postgres store satisfies the same interface when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type snapshotArchive interface {
	RecordSnapshot(leadID, encoded, author, message string) (history.CommitInfo, error)
	History(leadID string, limit int) ([]history.CommitInfo, error)
	SnapshotAt(leadID, hash string) (string, error)
}

type leadSearch interface {
	Search(q search.Query) search.Response
	IndexLead(lead search.LeadRecord)
	DeleteLead(id string)
	ReindexAllFromPG(ctx context.Context)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendIntakeAlert(to []string, leadName, source, treatmentInterest, leadURL string) error
}

type waSender interface {
	IsConfigured() bool
	SendText(ctx context.Context, to, body string) (string, error)
}

type blobStore interface {
	PutPDF(ctx context.Context, leadID, filename string, data []byte) (string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	builder  *normalize.Builder
	cache    *canoncache.Cache
	archive  snapshotArchive
	search   leadSearch
	export   exporter
	audit    *audit.Emitter
	authpw   *authpw.Service
	email    mailer
	whatsapp waSender
	blobs    blobStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, archive *history.Archive, searchService *search.Service, completer normalize.Completer) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		builder:  normalize.New(completer),
		archive:  archive,
		search:   searchService,
		export:   export.NewService(dataStore),
		audit:    audit.New(dataStore),
		authpw:   authpw.NewService(dataStore, cfg.JWTSecret),
	}
	return s
}

// WithSessionStore swaps refresh-session storage to Redis.
func (s *Service) WithSessionStore(sessions sessionStore) *Service {
	s.sessions = sessions
	return s
}

func (s *Service) WithCache(cache *canoncache.Cache) *Service {
	s.cache = cache
	return s
}

func (s *Service) WithEmail(mail *email.Service) *Service {
	s.email = mail
	return s
}

func (s *Service) WithWhatsApp(client *whatsapp.Client) *Service {
	s.whatsapp = client
	return s
}

func (s *Service) WithBlobs(blobs *blob.Store) *Service {
	s.blobs = blobs
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- sessions ---

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. When the primary session store loses the
// token (a flushed Redis, typically) the postgres copy is consulted before
// giving up, and a recovery is recorded.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		fallback, storeErr := s.store.LookupRefreshSession(ctx, tokenHash)
		if storeErr != nil {
			return Session{}, err
		}
		user = fallback
		s.audit.AuthSessionRecovered(ctx, user.ID)
	}
	_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
	_ = s.store.RevokeRefreshSession(ctx, tokenHash)
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := string(rbac.Normalize(user.Role))

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      string(rbac.Normalize(user.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		_ = s.store.RevokeRefreshSession(ctx, tokenHash)
	}
	return nil
}

func (s *Service) scopeFor(role string) rbac.RoleScope {
	return rbac.Scope(rbac.Normalize(role))
}

// --- intake and lead CRM ---

// Intake registers a lead from the public website form. The alert email and
// the WhatsApp acknowledgement are best-effort; a delivery failure never
// loses the lead.
func (s *Service) Intake(ctx context.Context, input IntakeInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	emailAddr := strings.TrimSpace(input.Email)
	phone := strings.TrimSpace(input.Phone)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if emailAddr == "" && phone == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email or phone is required", nil)
	}

	lead := store.Lead{
		ID:                util.NewID("ld"),
		Name:              name,
		Email:             emailAddr,
		Phone:             phone,
		Source:            strings.TrimSpace(input.Source),
		Status:            "new",
		TreatmentInterest: strings.TrimSpace(input.TreatmentInterest),
		Language:          strings.TrimSpace(input.Language),
		Country:           strings.TrimSpace(input.Country),
		City:              strings.TrimSpace(input.City),
	}
	if lead.Source == "" {
		lead.Source = "website"
	}
	if err := s.store.InsertLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}

	if message := strings.TrimSpace(input.Message); message != "" {
		if err := s.store.InsertNote(ctx, store.Note{
			ID:     util.NewID("nt"),
			LeadID: lead.ID,
			Author: name,
			Kind:   store.NoteKindManual,
			Body:   message,
		}); err != nil {
			return nil, fmt.Errorf("insert intake note: %w", err)
		}
	}

	s.recordTimeline(ctx, lead.ID, "intake", "Lead arrived via "+lead.Source)
	s.audit.LeadIntake(ctx, lead.ID, lead.Source)

	if s.email != nil && s.email.IsConfigured() && len(s.cfg.IntakeAlertEmails) > 0 {
		leadURL := strings.TrimRight(s.cfg.PortalURL, "/") + "/leads/" + lead.ID
		if err := s.email.SendIntakeAlert(s.cfg.IntakeAlertEmails, lead.Name, lead.Source, lead.TreatmentInterest, leadURL); err != nil {
			log.Printf("app: intake alert for %s not sent: %v", lead.ID, err)
		}
	}
	if s.whatsapp != nil && s.whatsapp.IsConfigured() && lead.Phone != "" {
		ack := "Thank you for contacting DentiClinic. Our care team will reach out within 24 hours."
		if _, err := s.whatsapp.SendText(ctx, lead.Phone, ack); err != nil {
			log.Printf("app: whatsapp acknowledgement for %s not sent: %v", lead.ID, err)
		}
	}
	s.indexLead(lead)

	return map[string]any{"leadId": lead.ID, "status": lead.Status}, nil
}

func (s *Service) ListLeads(ctx context.Context, status string, limit int, viewerRole string) (map[string]any, error) {
	if status != "" {
		if _, ok := allowedLeadStatuses[status]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status filter", nil)
		}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	leads, err := s.store.ListLeads(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	scope := s.scopeFor(viewerRole)
	items := make([]map[string]any, 0, len(leads))
	for _, lead := range leads {
		items = append(items, leadPayload(lead, scope))
	}
	return map[string]any{"leads": items}, nil
}

// GetLead assembles the lead detail view. Doctors see contact details but no
// internal notes or contact-attempt log; patients see neither.
func (s *Service) GetLead(ctx context.Context, leadID, viewerRole string) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	scope := s.scopeFor(viewerRole)
	payload := leadPayload(lead, scope)

	timeline, err := s.store.ListTimeline(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	timelineItems := make([]map[string]any, 0, len(timeline))
	for _, event := range timeline {
		item := map[string]any{
			"kind":      event.Kind,
			"createdAt": event.CreatedAt,
		}
		// Detail strings name staff actors and internal state, so they are
		// staff-only; other viewers get kind and timestamp.
		if scope.CanSeeInternalNotes {
			item["detail"] = event.Detail
		}
		timelineItems = append(timelineItems, item)
	}
	payload["timeline"] = timelineItems

	if scope.CanSeeInternalNotes {
		notes, err := s.store.ListNotes(ctx, leadID, store.NoteKindManual)
		if err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
		noteItems := make([]map[string]any, 0, len(notes))
		for _, note := range notes {
			noteItems = append(noteItems, map[string]any{
				"id":        note.ID,
				"author":    note.Author,
				"body":      note.Body,
				"createdAt": note.CreatedAt,
			})
		}
		payload["notes"] = noteItems

		attempts, err := s.store.ListContactAttempts(ctx, leadID)
		if err != nil {
			return nil, fmt.Errorf("list contact attempts: %w", err)
		}
		attemptItems := make([]map[string]any, 0, len(attempts))
		for _, attempt := range attempts {
			attemptItems = append(attemptItems, map[string]any{
				"id":        attempt.ID,
				"channel":   attempt.Channel,
				"outcome":   attempt.Outcome,
				"createdAt": attempt.CreatedAt,
			})
		}
		payload["contactAttempts"] = attemptItems
	}

	if note, err := s.store.LatestCanonicalNote(ctx, leadID); err == nil && note != nil {
		if snapshot, decodeErr := canonical.DecodeNote(note.Body); decodeErr == nil {
			payload["canonical"] = canonicalPayload(snapshot, scope)
			payload["canonicalUpdatedAt"] = note.CreatedAt
		} else {
			log.Printf("app: corrupt canonical note for %s: %v", leadID, decodeErr)
		}
	}

	return payload, nil
}

func (s *Service) UpdateLeadStatus(ctx context.Context, leadID, status, actor string) (map[string]any, error) {
	if _, ok := allowedLeadStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown lead status", map[string]any{"status": status})
	}
	if err := s.store.UpdateLeadStatus(ctx, leadID, status); err != nil {
		return nil, err
	}
	s.recordTimeline(ctx, leadID, "status_changed", fmt.Sprintf("Status set to %s by %s", status, actor))
	if lead, err := s.store.GetLead(ctx, leadID); err == nil {
		s.indexLead(lead)
	}
	return map[string]any{"leadId": leadID, "status": status}, nil
}

// AddNote stores a manual staff note. Bodies carrying a machine note tag are
// rejected so nobody can forge canonical or memory rows through this path.
func (s *Service) AddNote(ctx context.Context, leadID, author, body string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "note body is required", nil)
	}
	if canonical.IsNote(body) {
		return nil, domainError(http.StatusUnprocessableEntity, "RESERVED_NOTE_TAG", "canonical note tags are reserved for the normalizer", nil)
	}
	if _, isMemory := memvault.IsNote(body); isMemory {
		return nil, domainError(http.StatusUnprocessableEntity, "RESERVED_NOTE_TAG", "memory note tags are reserved for the normalizer", nil)
	}
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return nil, err
	}

	note := store.Note{
		ID:     util.NewID("nt"),
		LeadID: leadID,
		Author: author,
		Kind:   store.NoteKindManual,
		Body:   body,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	s.recordTimeline(ctx, leadID, "note_added", "Note added by "+author)
	return map[string]any{"noteId": note.ID}, nil
}

func (s *Service) AddContactAttempt(ctx context.Context, leadID string, input ContactAttemptInput, actor string) (map[string]any, error) {
	if _, ok := allowedContactChannels[input.Channel]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown contact channel", map[string]any{"channel": input.Channel})
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	outcome := strings.TrimSpace(input.Outcome)
	delivered := false
	if input.Channel == "whatsapp" && strings.TrimSpace(input.Message) != "" {
		if s.whatsapp == nil || !s.whatsapp.IsConfigured() {
			return nil, domainError(http.StatusServiceUnavailable, "WHATSAPP_UNAVAILABLE", "WhatsApp sending is not configured", nil)
		}
		if lead.Phone == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "lead has no phone number", nil)
		}
		if _, err := s.whatsapp.SendText(ctx, lead.Phone, input.Message); err != nil {
			return nil, fmt.Errorf("send whatsapp message: %w", err)
		}
		delivered = true
		if outcome == "" {
			outcome = "message_sent"
		}
	}
	if outcome == "" {
		outcome = "attempted"
	}

	attempt := store.ContactAttempt{
		ID:      util.NewID("ca"),
		LeadID:  leadID,
		Channel: input.Channel,
		Outcome: outcome,
	}
	if err := s.store.InsertContactAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("insert contact attempt: %w", err)
	}
	s.recordTimeline(ctx, leadID, "contact_attempt", fmt.Sprintf("%s via %s by %s", outcome, input.Channel, actor))
	return map[string]any{"attemptId": attempt.ID, "outcome": outcome, "delivered": delivered}, nil
}

// --- canonical pipeline ---

// NormalizeLead runs one canonical pass for a lead: gather inputs, one
// completion call, ground-truth merge, diff against the previous snapshot,
// persist the tagged note, rebuild all scoped memories, commit the snapshot
// to the archive, and emit telemetry.
func (s *Service) NormalizeLead(ctx context.Context, leadID, actor string) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	bundle, err := s.loadBundle(ctx, lead)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.builder.Build(ctx, bundle)
	if err != nil {
		if errors.Is(err, canonical.ErrParse) || errors.Is(err, canonical.ErrValidation) {
			return nil, domainError(http.StatusBadGateway, "AI_RESPONSE_INVALID", "The AI response could not be parsed into a canonical snapshot", map[string]any{"reason": err.Error()})
		}
		return nil, fmt.Errorf("build canonical snapshot: %w", err)
	}

	truth := diff.GroundTruth{Name: lead.Name, Phone: lead.Phone, Email: lead.Email, Source: lead.Source}

	// Diff against the raw snapshot so contact conflicts stay visible on
	// later runs, then persist the safe-merged version where ground truth
	// always wins.
	prev := s.previousSnapshot(ctx, leadID)
	changelog := diff.Diff(prev, snapshot, truth)
	merged := diff.SafeMerge(snapshot, truth)
	if merged.V11 != nil {
		merged.V11.Changelog = changelog.Lines()
		if len(changelog.Conflicts) > 0 {
			merged.V11.ReviewRequired = true
			merged.V11.ReviewReasons = append(merged.V11.ReviewReasons, changelog.Conflicts...)
		}
	}

	encoded, err := canonical.EncodeNote(merged)
	if err != nil {
		return nil, fmt.Errorf("encode canonical note: %w", err)
	}
	note := store.Note{
		ID:     util.NewID("nt"),
		LeadID: leadID,
		Author: aiAuthor,
		Kind:   store.NoteKindCanonical,
		Body:   encoded,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, fmt.Errorf("insert canonical note: %w", err)
	}
	s.cache.Put(ctx, leadID, merged)

	if err := s.rebuildMemories(ctx, leadID, merged, truth); err != nil {
		return nil, err
	}

	if s.archive != nil {
		message := fmt.Sprintf("Canonical run for %s (%d changes)", leadID, len(changelog.Lines()))
		if _, err := s.archive.RecordSnapshot(leadID, encoded, aiAuthor, message); err != nil {
			log.Printf("app: snapshot archive commit for %s failed: %v", leadID, err)
		}
	}

	s.emitRunTelemetry(ctx, leadID, merged, changelog, len(bundle.Notes))
	s.recordTimeline(ctx, leadID, "canonical_run", fmt.Sprintf("Canonical snapshot rebuilt by %s", actor))
	s.indexLead(lead)

	payload := map[string]any{
		"leadId":    leadID,
		"noteId":    note.ID,
		"version":   merged.Version(),
		"changelog": changelog.Lines(),
	}
	if merged.V11 != nil {
		payload["reviewRequired"] = merged.V11.ReviewRequired
	}
	return payload, nil
}

func (s *Service) loadBundle(ctx context.Context, lead store.Lead) (normalize.Bundle, error) {
	notes, err := s.store.ListNotes(ctx, lead.ID, store.NoteKindManual)
	if err != nil {
		return normalize.Bundle{}, fmt.Errorf("list notes: %w", err)
	}
	attempts, err := s.store.ListContactAttempts(ctx, lead.ID)
	if err != nil {
		return normalize.Bundle{}, fmt.Errorf("list contact attempts: %w", err)
	}
	timeline, err := s.store.ListTimeline(ctx, lead.ID)
	if err != nil {
		return normalize.Bundle{}, fmt.Errorf("list timeline: %w", err)
	}

	bundle := normalize.Bundle{
		Lead: normalize.LeadCore{
			ID:                lead.ID,
			Name:              lead.Name,
			Email:             lead.Email,
			Phone:             lead.Phone,
			Source:            lead.Source,
			Status:            lead.Status,
			TreatmentInterest: lead.TreatmentInterest,
			Language:          lead.Language,
			Country:           lead.Country,
			City:              lead.City,
			CreatedAt:         lead.CreatedAt,
		},
	}
	for _, note := range notes {
		bundle.Notes = append(bundle.Notes, normalize.NoteInput{Author: note.Author, Body: note.Body, CreatedAt: note.CreatedAt})
	}
	for _, attempt := range attempts {
		bundle.Contacts = append(bundle.Contacts, normalize.ContactInput{Channel: attempt.Channel, Outcome: attempt.Outcome, CreatedAt: attempt.CreatedAt})
	}
	for _, event := range timeline {
		bundle.Timeline = append(bundle.Timeline, normalize.EventInput{Kind: event.Kind, Detail: event.Detail, CreatedAt: event.CreatedAt})
	}
	return bundle, nil
}

// previousSnapshot resolves the latest persisted canonical for the diff,
// cache first, note table second. Absence and corruption both read as a
// first run.
func (s *Service) previousSnapshot(ctx context.Context, leadID string) *canonical.Canonical {
	if cached := s.cache.Get(ctx, leadID); cached != nil {
		return cached
	}
	note, err := s.store.LatestCanonicalNote(ctx, leadID)
	if err != nil {
		log.Printf("app: previous canonical lookup for %s: %v", leadID, err)
		return nil
	}
	if note == nil {
		return nil
	}
	snapshot, err := canonical.DecodeNote(note.Body)
	if err != nil {
		log.Printf("app: previous canonical for %s is corrupt, treating as first run: %v", leadID, err)
		return nil
	}
	return snapshot
}

func (s *Service) rebuildMemories(ctx context.Context, leadID string, merged *canonical.Canonical, truth diff.GroundTruth) error {
	for _, scope := range memvault.Scopes() {
		memory, err := memvault.Build(merged, truth, scope)
		if err != nil {
			return fmt.Errorf("build %s memory: %w", scope, err)
		}
		encoded, err := memvault.EncodeNote(memory)
		if err != nil {
			return fmt.Errorf("encode %s memory: %w", scope, err)
		}
		if err := s.store.ReplaceMemoryNote(ctx, store.Note{
			ID:     util.NewID("nt"),
			LeadID: leadID,
			Author: aiAuthor,
			Kind:   store.NoteKindMemory,
			Scope:  scope,
			Body:   encoded,
		}); err != nil {
			return fmt.Errorf("replace %s memory: %w", scope, err)
		}
		s.audit.AIMemorySync(ctx, audit.MemorySync{
			LeadID:        leadID,
			Scope:         scope,
			Facts:         len(memory.Facts),
			OpenQuestions: len(memory.OpenQuestions),
			MissingFields: len(memory.MissingFields),
		})
	}
	return nil
}

func (s *Service) emitRunTelemetry(ctx context.Context, leadID string, merged *canonical.Canonical, changelog diff.Changelog, notesUsed int) {
	summary := audit.RunSummary{
		LeadID:    leadID,
		Version:   merged.Version(),
		Added:     len(changelog.Added),
		Updated:   len(changelog.Updated),
		Removed:   len(changelog.Removed),
		Conflicts: len(changelog.Conflicts),
		NotesUsed: notesUsed,
	}
	if _, ok := merged.RiskScore(); ok {
		summary.HasRisk = true
	}
	if merged.V11 != nil {
		summary.ReviewRequired = merged.V11.ReviewRequired
		if fw := merged.V11.Security; fw != nil {
			s.audit.AIFirewall(ctx, audit.FirewallHit{
				LeadID:            leadID,
				Emails:            fw.Firewall.EmailsRedacted,
				Phones:            fw.Firewall.PhonesRedacted,
				InjectionDetected: fw.Firewall.InjectionDetected,
			})
		}
	}
	s.audit.AIAudit(ctx, summary)
}

// --- memory, context pack, export, search, history ---

// Memory serves a scoped memory projection. The requested scope must not
// exceed what the viewer's role may read; an empty scope resolves to the
// role's own scope.
func (s *Service) Memory(ctx context.Context, leadID, viewerRole, requestedScope string) (map[string]any, error) {
	role := rbac.Normalize(viewerRole)
	scope := requestedScope
	if scope == "" {
		scope = rbac.MemoryScope(role)
	}
	if !scopeAllowed(role, scope) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Requested memory scope exceeds role privileges", nil)
	}

	note, err := s.store.GetMemoryNote(ctx, leadID, scope)
	if err != nil {
		return nil, fmt.Errorf("get memory note: %w", err)
	}
	if note == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No memory for this lead yet", nil)
	}
	memory, err := memvault.DecodeNote(note.Body)
	if err != nil {
		return nil, fmt.Errorf("decode memory note: %w", err)
	}
	return map[string]any{"memory": memory, "updatedAt": note.CreatedAt}, nil
}

// ContextPack renders the most privileged memory the role may read as the
// flat prompt block. It always returns a payload; missing memories collapse
// to the fixed fallback string.
func (s *Service) ContextPack(ctx context.Context, leadID, viewerRole string) (map[string]any, error) {
	role := rbac.Normalize(viewerRole)
	memories := map[string]memvault.MemoryV1{}
	for _, scope := range memvault.Scopes() {
		if !scopeAllowed(role, scope) {
			continue
		}
		note, err := s.store.GetMemoryNote(ctx, leadID, scope)
		if err != nil {
			return nil, fmt.Errorf("get %s memory note: %w", scope, err)
		}
		if note == nil {
			continue
		}
		memory, err := memvault.DecodeNote(note.Body)
		if err != nil {
			log.Printf("app: corrupt %s memory for %s: %v", scope, leadID, err)
			continue
		}
		memories[scope] = memory
	}
	return map[string]any{"contextPack": memvault.ContextPack(role, memories)}, nil
}

// ExportResult is the outcome of a PDF export, optionally uploaded to
// object storage.
type ExportResult struct {
	Data      []byte
	Filename  string
	MimeType  string
	ObjectKey string
	URL       string
}

func (s *Service) ExportLead(ctx context.Context, leadID, viewerRole string, upload bool) (*ExportResult, error) {
	scope := s.scopeFor(viewerRole)
	result, err := s.export.Export(ctx, export.Request{
		LeadID:                    leadID,
		Format:                    export.FormatPDF,
		ViewerCanSeePII:           scope.CanSeePII,
		ViewerCanSeeInternalNotes: scope.CanSeeInternalNotes,
	})
	if err != nil {
		if errors.Is(err, export.ErrContentUnavailable) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Lead has no canonical summary to export", nil)
		}
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF rendering is not available on this host", nil)
		}
		return nil, err
	}

	out := &ExportResult{Data: result.Data, Filename: result.Filename, MimeType: result.MimeType}
	if upload {
		if s.blobs == nil {
			return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
		}
		key, err := s.blobs.PutPDF(ctx, leadID, result.Filename, result.Data)
		if err != nil {
			return nil, fmt.Errorf("store export: %w", err)
		}
		url, err := s.blobs.PresignedURL(ctx, key, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("presign export: %w", err)
		}
		out.ObjectKey = key
		out.URL = url
	}
	return out, nil
}

func (s *Service) SearchLeads(ctx context.Context, text, status, source string, limit, offset int, viewerRole string) (search.Response, error) {
	scope := s.scopeFor(viewerRole)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.search.Search(search.Query{
		Text:         text,
		FilterStatus: status,
		FilterSource: source,
		Limit:        limit,
		Offset:       offset,
		CanSeePII:    scope.CanSeePII,
	}), nil
}

func (s *Service) LeadHistory(ctx context.Context, leadID string, limit int) (map[string]any, error) {
	if s.archive == nil {
		return map[string]any{"commits": []history.CommitInfo{}}, nil
	}
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	commits, err := s.archive.History(leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	return map[string]any{"commits": commits}, nil
}

// LeadSnapshotAt returns the canonical snapshot as of an archive commit,
// filtered through the viewer's role the same way the live view is.
func (s *Service) LeadSnapshotAt(ctx context.Context, leadID, hash, viewerRole string) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot archive is not configured", nil)
	}
	encoded, err := s.archive.SnapshotAt(leadID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found", nil)
	}
	snapshot, err := canonical.DecodeNote(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode archived snapshot: %w", err)
	}
	return map[string]any{
		"hash":      hash,
		"canonical": canonicalPayload(snapshot, s.scopeFor(viewerRole)),
	}, nil
}

// ReindexLeads pushes every lead from the database of record back into the
// search index. Used after a Meilisearch restart or index wipe.
func (s *Service) ReindexLeads(ctx context.Context) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	s.search.ReindexAllFromPG(ctx)
	return map[string]any{"ok": true}, nil
}

func (s *Service) Summary(ctx context.Context) (map[string]any, error) {
	leads, fresh, canonicals, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("summary counts: %w", err)
	}
	return map[string]any{
		"leads":          leads,
		"newLeads":       fresh,
		"canonicalNotes": canonicals,
	}, nil
}

// --- helpers ---

func (s *Service) recordTimeline(ctx context.Context, leadID, kind, detail string) {
	err := s.store.InsertTimelineEvent(ctx, store.TimelineEvent{
		ID:     util.NewID("tl"),
		LeadID: leadID,
		Kind:   kind,
		Detail: detail,
	})
	if err != nil {
		log.Printf("app: timeline event %s for %s dropped: %v", kind, leadID, err)
	}
}

func (s *Service) indexLead(lead store.Lead) {
	if s.search == nil {
		return
	}
	s.search.IndexLead(search.LeadRecord{
		ID:                lead.ID,
		Name:              lead.Name,
		Email:             lead.Email,
		Phone:             lead.Phone,
		Status:            lead.Status,
		Source:            lead.Source,
		TreatmentInterest: lead.TreatmentInterest,
		Country:           lead.Country,
		City:              lead.City,
	})
}

func scopeAllowed(role rbac.Role, scope string) bool {
	switch rbac.MemoryScope(role) {
	case memvault.ScopeInternal:
		return scope == memvault.ScopeInternal || scope == memvault.ScopeDoctor || scope == memvault.ScopePatient
	case memvault.ScopeDoctor:
		return scope == memvault.ScopeDoctor || scope == memvault.ScopePatient
	default:
		return scope == memvault.ScopePatient
	}
}

func leadPayload(lead store.Lead, scope rbac.RoleScope) map[string]any {
	payload := map[string]any{
		"id":                lead.ID,
		"name":              lead.Name,
		"source":            lead.Source,
		"status":            lead.Status,
		"treatmentInterest": lead.TreatmentInterest,
		"language":          lead.Language,
		"country":           lead.Country,
		"city":              lead.City,
		"createdAt":         lead.CreatedAt,
		"updatedAt":         lead.UpdatedAt,
	}
	if scope.CanSeePII {
		payload["email"] = lead.Email
		payload["phone"] = lead.Phone
	} else {
		payload["name"] = ""
	}
	return payload
}

// canonicalPayload shapes a snapshot for a viewer. Contact facts are dropped
// for non-PII viewers; open questions, missing fields, and the raw script
// stay internal; patient-facing scripts are contact-masked.
func canonicalPayload(snapshot *canonical.Canonical, scope rbac.RoleScope) map[string]any {
	facts := snapshot.FactMap()
	if !scope.CanSeePII {
		delete(facts, "name")
		delete(facts, "phone")
		delete(facts, "email")
	}

	payload := map[string]any{
		"version":       snapshot.Version(),
		"facts":         facts,
		"eventsSummary": snapshot.EventsSummary(),
	}
	if risk, ok := snapshot.RiskScore(); ok {
		payload["riskScore"] = risk
	}
	if confidence, ok := snapshot.Confidence(); ok {
		payload["confidence"] = confidence
	}

	action := snapshot.NextAction()
	if action.Label != "" || len(action.Script) > 0 {
		actionPayload := map[string]any{
			"label":    action.Label,
			"channel":  action.Channel,
			"dueHours": action.DueHours,
		}
		if scope.CanSeeInternalNotes {
			actionPayload["script"] = action.Script
		} else {
			masked := make([]string, 0, len(action.Script))
			for _, line := range action.Script {
				masked = append(masked, firewall.MaskContacts(line))
			}
			actionPayload["script"] = masked
		}
		payload["nextBestAction"] = actionPayload
	}

	if scope.CanSeeInternalNotes {
		payload["missingFields"] = snapshot.MissingFields()
		payload["openQuestions"] = snapshot.OpenQuestions()
		if snapshot.V11 != nil {
			payload["changelog"] = snapshot.V11.Changelog
			payload["reviewRequired"] = snapshot.V11.ReviewRequired
			payload["reviewReasons"] = snapshot.V11.ReviewReasons
		}
	}
	return payload
}
