// Package newsletter implements the subscription, campaign and engagement
// tracking engine: subscriber lifecycle with double opt-in, segment-targeted
// campaigns with per-delivery tracking keys, and the click/open logs that
// feed campaign aggregates.
package newsletter

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/i18n"
)

// Campaign status constants
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignSent      = "sent"
	CampaignCancelled = "cancelled"
	CampaignFailed    = "failed"
)

// Delivery status constants
const (
	DeliveryPending      = "pending"
	DeliverySent         = "sent"
	DeliveryDelivered    = "delivered"
	DeliveryOpened       = "opened"
	DeliveryClicked      = "clicked"
	DeliveryBounced      = "bounced"
	DeliveryFailed       = "failed"
	DeliveryUnsubscribed = "unsubscribed"
)

// Template type constants
const (
	TemplateWelcome      = "welcome"
	TemplateConfirmation = "confirmation"
	TemplateRegular      = "regular"
	TemplatePromotional  = "promotional"
	TemplateDigest       = "digest"
	TemplateEvent        = "event"
	TemplateAnnouncement = "announcement"
	TemplateCustom       = "custom"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrAlreadySubscribed = errors.New("email is already subscribed")
	ErrInvalidToken      = errors.New("invalid or expired confirmation token")
	ErrNotSubscribed     = errors.New("email is not subscribed")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
)

// Subscriber represents a newsletter subscriber. Rows are never deleted;
// unsubscribing clears is_active and re-subscribing restarts the opt-in.
type Subscriber struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	Email              string     `json:"email" db:"email"`
	FirstName          string     `json:"first_name" db:"first_name"`
	LastName           string     `json:"last_name" db:"last_name"`
	LanguagePreference string     `json:"language_preference" db:"language_preference"`
	Confirmed          bool       `json:"confirmed" db:"confirmed"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	ConfirmationToken  string     `json:"-" db:"confirmation_token"`
	SubscribedAt       time.Time  `json:"subscribed_at" db:"subscribed_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at" db:"confirmed_at"`
	UnsubscribedAt     *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName joins the name parts, tolerating either being empty.
func (s *Subscriber) FullName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	default:
		return s.LastName
	}
}

// Segment represents a named group of subscribers.
type Segment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	MemberCount int       `json:"member_count" db:"member_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SegmentMember is the membership join row between segments and subscribers.
type SegmentMember struct {
	SegmentID    uuid.UUID `json:"segment_id" db:"segment_id"`
	SubscriberID uuid.UUID `json:"subscriber_id" db:"subscriber_id"`
	AddedAt      time.Time `json:"added_at" db:"added_at"`
}

// Template represents a bilingual email template.
type Template struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	Name      string             `json:"name" db:"name"`
	Type      string             `json:"type" db:"type"`
	Subject   i18n.LocalizedText `json:"subject"`
	BodyHTML  i18n.LocalizedText `json:"body_html"`
	BodyText  i18n.LocalizedText `json:"body_text"`
	IsActive  bool               `json:"is_active" db:"is_active"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// ValidTemplateType reports whether t is one of the known template types.
func ValidTemplateType(t string) bool {
	switch t {
	case TemplateWelcome, TemplateConfirmation, TemplateRegular, TemplatePromotional,
		TemplateDigest, TemplateEvent, TemplateAnnouncement, TemplateCustom:
		return true
	}
	return false
}

// Campaign represents one email campaign. Aggregate counters are updated
// incrementally by the send pipeline and the tracking endpoints.
type Campaign struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	TemplateID      uuid.UUID   `json:"template_id" db:"template_id"`
	SegmentIDs      []uuid.UUID `json:"segment_ids"`
	Status          string      `json:"status" db:"status"`
	ScheduledAt     *time.Time  `json:"scheduled_at" db:"scheduled_at"`
	StartedAt       *time.Time  `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at" db:"completed_at"`
	TotalRecipients int         `json:"total_recipients" db:"total_recipients"`
	SentCount       int         `json:"sent_count" db:"sent_count"`
	OpenCount       int         `json:"open_count" db:"open_count"`
	ClickCount      int         `json:"click_count" db:"click_count"`
	BounceCount     int         `json:"bounce_count" db:"bounce_count"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// CampaignStats holds derived campaign metrics.
type CampaignStats struct {
	OpenRate   float64 `json:"open_rate"`
	ClickRate  float64 `json:"click_rate"`
	BounceRate float64 `json:"bounce_rate"`
	CTR        float64 `json:"click_to_open_rate"`
}

// CalculateStats derives rate metrics from the raw counters.
func (c *Campaign) CalculateStats() CampaignStats {
	stats := CampaignStats{}
	if c.SentCount > 0 {
		stats.OpenRate = float64(c.OpenCount) / float64(c.SentCount) * 100
		stats.ClickRate = float64(c.ClickCount) / float64(c.SentCount) * 100
		stats.BounceRate = float64(c.BounceCount) / float64(c.SentCount) * 100
	}
	if c.OpenCount > 0 {
		stats.CTR = float64(c.ClickCount) / float64(c.OpenCount) * 100
	}
	return stats
}

// IsTerminal reports whether the campaign can no longer change status.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled || c.Status == CampaignFailed
}

// Delivery is the record of one campaign email to one subscriber. The
// (campaign_id, subscriber_id) pair is unique; the tracking key is the
// opaque identifier embedded in pixel and redirect URLs and is unrelated
// to the subscriber's confirmation token.
type Delivery struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	CampaignID    uuid.UUID  `json:"campaign_id" db:"campaign_id"`
	SubscriberID  uuid.UUID  `json:"subscriber_id" db:"subscriber_id"`
	TrackingKey   string     `json:"-" db:"tracking_key"`
	Status        string     `json:"status" db:"status"`
	SentAt        *time.Time `json:"sent_at" db:"sent_at"`
	OpenedAt      *time.Time `json:"opened_at" db:"opened_at"`
	ClickedAt     *time.Time `json:"clicked_at" db:"clicked_at"`
	OpenCount     int        `json:"open_count" db:"open_count"`
	ClickCount    int        `json:"click_count" db:"click_count"`
	Attempts      int        `json:"attempts" db:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at" db:"next_attempt_at"`
	ErrorMessage  string     `json:"error_message" db:"error_message"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// LinkClick is one row per click event, never deduplicated.
type LinkClick struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DeliveryID uuid.UUID `json:"delivery_id" db:"delivery_id"`
	URL        string    `json:"url" db:"url"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	ClickedAt  time.Time `json:"clicked_at" db:"clicked_at"`
}
