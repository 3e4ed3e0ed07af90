package newsletter

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store provides database operations for newsletter entities.
type Store struct {
	db *sql.DB
}

// NewStore creates a new newsletter store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for workers that share the pool.
func (s *Store) DB() *sql.DB { return s.db }

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail performs basic syntactic validation.
func ValidateEmail(email string) bool {
	email = NormalizeEmail(email)
	if email == "" || len(email) > 254 {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at > 64 {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	return emailRegex.MatchString(email)
}

// NewConfirmationToken returns a fresh opaque opt-in token. 32 random
// bytes hex-encoded; uniqueness is enforced by the column constraint.
func NewConfirmationToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewTrackingKey returns a per-delivery tracking key. Shorter than the
// confirmation token since it ships inside every pixel and link URL.
func NewTrackingKey() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// =============================================================================
// Subscribers
// =============================================================================

// CreateSubscriber inserts a new unconfirmed subscriber with a fresh token.
func (s *Store) CreateSubscriber(ctx context.Context, sub *Subscriber) error {
	sub.ID = uuid.New()
	sub.Email = NormalizeEmail(sub.Email)
	if sub.ConfirmationToken == "" {
		sub.ConfirmationToken = NewConfirmationToken()
	}
	if sub.LanguagePreference == "" {
		sub.LanguagePreference = "en"
	}
	sub.IsActive = true
	sub.SubscribedAt = time.Now()
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = time.Now()

	query := `INSERT INTO archway_subscribers (id, email, first_name, last_name,
		language_preference, confirmed, is_active, confirmation_token, subscribed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query, sub.ID, sub.Email, sub.FirstName, sub.LastName,
		sub.LanguagePreference, sub.Confirmed, sub.IsActive, sub.ConfirmationToken,
		sub.SubscribedAt, sub.CreatedAt, sub.UpdatedAt)
	return err
}

const subscriberColumns = `id, email, first_name, last_name, language_preference,
	confirmed, is_active, confirmation_token, subscribed_at, confirmed_at,
	unsubscribed_at, created_at, updated_at`

func scanSubscriber(row interface{ Scan(...any) error }) (*Subscriber, error) {
	sub := &Subscriber{}
	err := row.Scan(&sub.ID, &sub.Email, &sub.FirstName, &sub.LastName,
		&sub.LanguagePreference, &sub.Confirmed, &sub.IsActive, &sub.ConfirmationToken,
		&sub.SubscribedAt, &sub.ConfirmedAt, &sub.UnsubscribedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSubscriber retrieves a subscriber by ID.
func (s *Store) GetSubscriber(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM archway_subscribers WHERE id = $1`
	return scanSubscriber(s.db.QueryRowContext(ctx, query, id))
}

// GetSubscriberByEmail retrieves a subscriber by normalized email.
func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM archway_subscribers WHERE email = $1`
	return scanSubscriber(s.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
}

// ReissueToken restarts the opt-in for an existing row: fresh token,
// updated profile fields, unconfirmed and active again. The previous
// token stops working immediately.
func (s *Store) ReissueToken(ctx context.Context, id uuid.UUID, token, firstName, lastName, lang string) error {
	query := `UPDATE archway_subscribers
		SET confirmation_token = $2, first_name = $3, last_name = $4,
		    language_preference = $5, confirmed = false, is_active = true,
		    subscribed_at = NOW(), unsubscribed_at = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, token, firstName, lastName, lang)
	return err
}

// ConfirmByToken flips confirmed on the row holding the token, provided
// it has not been confirmed yet. Returns the subscriber on success or
// (nil, nil) when the token does not match an unconfirmed row.
func (s *Store) ConfirmByToken(ctx context.Context, token string) (*Subscriber, error) {
	query := `UPDATE archway_subscribers
		SET confirmed = true, confirmed_at = NOW(), updated_at = NOW()
		WHERE confirmation_token = $1 AND confirmed = false
		RETURNING ` + subscriberColumns
	return scanSubscriber(s.db.QueryRowContext(ctx, query, token))
}

// DeactivateSubscriber soft-deletes an active subscriber by email.
// Returns false when no active row matches.
func (s *Store) DeactivateSubscriber(ctx context.Context, email string) (*Subscriber, error) {
	query := `UPDATE archway_subscribers
		SET is_active = false, unsubscribed_at = NOW(), updated_at = NOW()
		WHERE email = $1 AND is_active = true
		RETURNING ` + subscriberColumns
	return scanSubscriber(s.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
}

// DeactivateSubscriberByID is the tracking-key unsubscribe variant.
func (s *Store) DeactivateSubscriberByID(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE archway_subscribers
		SET is_active = false, unsubscribed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_active = true`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// ListSubscribers returns subscribers, newest first.
func (s *Store) ListSubscribers(ctx context.Context, limit, offset int) ([]*Subscriber, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + subscriberColumns + ` FROM archway_subscribers
		ORDER BY subscribed_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetAllActiveConfirmed returns every subscriber eligible to receive a
// campaign with no segment targeting.
func (s *Store) GetAllActiveConfirmed(ctx context.Context) ([]*Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM archway_subscribers
		WHERE is_active = true AND confirmed = true ORDER BY subscribed_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// =============================================================================
// Segments
// =============================================================================

// CreateSegment creates a new segment.
func (s *Store) CreateSegment(ctx context.Context, seg *Segment) error {
	seg.ID = uuid.New()
	seg.IsActive = true
	seg.CreatedAt = time.Now()
	seg.UpdatedAt = time.Now()

	query := `INSERT INTO archway_segments (id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, seg.ID, seg.Name, seg.Description, seg.IsActive,
		seg.CreatedAt, seg.UpdatedAt)
	return err
}

// GetSegment retrieves a segment by ID with its member count.
func (s *Store) GetSegment(ctx context.Context, id uuid.UUID) (*Segment, error) {
	query := `SELECT s.id, s.name, s.description, s.is_active, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM archway_segment_members m WHERE m.segment_id = s.id) AS member_count
		FROM archway_segments s WHERE s.id = $1`

	seg := &Segment{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&seg.ID, &seg.Name, &seg.Description,
		&seg.IsActive, &seg.CreatedAt, &seg.UpdatedAt, &seg.MemberCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// ListSegments returns all active segments ordered by name.
func (s *Store) ListSegments(ctx context.Context) ([]*Segment, error) {
	query := `SELECT s.id, s.name, s.description, s.is_active, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM archway_segment_members m WHERE m.segment_id = s.id) AS member_count
		FROM archway_segments s WHERE s.is_active = true ORDER BY s.name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segs []*Segment
	for rows.Next() {
		seg := &Segment{}
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Description, &seg.IsActive,
			&seg.CreatedAt, &seg.UpdatedAt, &seg.MemberCount); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// UpdateSegment updates name/description/active flag.
func (s *Store) UpdateSegment(ctx context.Context, seg *Segment) error {
	query := `UPDATE archway_segments SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, seg.ID, seg.Name, seg.Description, seg.IsActive)
	return err
}

// AddSegmentMember adds a subscriber to a segment. Returns true when the
// membership is new; re-adding an existing member is a no-op.
func (s *Store) AddSegmentMember(ctx context.Context, segmentID, subscriberID uuid.UUID) (bool, error) {
	query := `INSERT INTO archway_segment_members (segment_id, subscriber_id, added_at)
		VALUES ($1, $2, NOW()) ON CONFLICT (segment_id, subscriber_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, segmentID, subscriberID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveSegmentMember removes a subscriber from a segment.
func (s *Store) RemoveSegmentMember(ctx context.Context, segmentID, subscriberID uuid.UUID) error {
	query := `DELETE FROM archway_segment_members WHERE segment_id = $1 AND subscriber_id = $2`
	_, err := s.db.ExecContext(ctx, query, segmentID, subscriberID)
	return err
}

// GetSegmentMembers returns the active confirmed subscribers of a segment.
func (s *Store) GetSegmentMembers(ctx context.Context, segmentID uuid.UUID) ([]*Subscriber, error) {
	query := `SELECT ` + prefixColumns("sub", subscriberColumns) + `
		FROM archway_subscribers sub
		JOIN archway_segment_members m ON m.subscriber_id = sub.id
		WHERE m.segment_id = $1 AND sub.is_active = true AND sub.confirmed = true
		ORDER BY m.added_at`
	rows, err := s.db.QueryContext(ctx, query, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// prefixColumns rewrites a comma-separated column list with a table alias.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
