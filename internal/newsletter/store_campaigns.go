package newsletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// =============================================================================
// Campaigns
// =============================================================================

const campaignColumns = `id, name, template_id, status, scheduled_at, started_at, completed_at,
	total_recipients, sent_count, open_count, click_count, bounce_count, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*Campaign, error) {
	c := &Campaign{}
	err := row.Scan(&c.ID, &c.Name, &c.TemplateID, &c.Status, &c.ScheduledAt, &c.StartedAt,
		&c.CompletedAt, &c.TotalRecipients, &c.SentCount, &c.OpenCount, &c.ClickCount,
		&c.BounceCount, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCampaign creates a draft campaign and its segment associations.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	c.ID = uuid.New()
	c.Status = CampaignDraft
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO archway_campaigns (id, name, template_id, status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query, c.ID, c.Name, c.TemplateID, c.Status,
		c.ScheduledAt, c.CreatedAt, c.UpdatedAt); err != nil {
		return err
	}

	for _, segID := range c.SegmentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO archway_campaign_segments (campaign_id, segment_id) VALUES ($1, $2)`,
			c.ID, segID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetCampaign retrieves a campaign with its segment IDs.
func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM archway_campaigns WHERE id = $1`
	c, err := scanCampaign(s.db.QueryRowContext(ctx, query, id))
	if err != nil || c == nil {
		return c, err
	}
	c.SegmentIDs, err = s.getCampaignSegmentIDs(ctx, id)
	return c, err
}

func (s *Store) getCampaignSegmentIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id FROM archway_campaign_segments WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListCampaigns returns campaigns newest first.
func (s *Store) ListCampaigns(ctx context.Context, limit, offset int) ([]*Campaign, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + campaignColumns + ` FROM archway_campaigns
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ScheduleCampaign moves a draft campaign to scheduled at the given time.
func (s *Store) ScheduleCampaign(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE archway_campaigns
		SET status = $2, scheduled_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, CampaignScheduled, at, CampaignDraft)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SendCampaignNow queues a campaign for immediate pickup. A draft is
// scheduled on the spot; an already scheduled campaign has its
// scheduled_at pulled forward.
func (s *Store) SendCampaignNow(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE archway_campaigns
		SET status = $2, scheduled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, CampaignScheduled, CampaignDraft, CampaignScheduled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CancelCampaign cancels a campaign that has not started sending.
func (s *Store) CancelCampaign(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE archway_campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, CampaignCancelled, CampaignDraft, CampaignScheduled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// GetDueCampaigns returns scheduled campaigns whose time has arrived,
// plus campaigns explicitly queued via send-now (scheduled in the past).
func (s *Store) GetDueCampaigns(ctx context.Context, limit int) ([]*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM archway_campaigns
		WHERE status = $1 AND scheduled_at <= NOW()
		ORDER BY scheduled_at LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, CampaignScheduled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ClaimCampaignForSending transitions draft/scheduled → sending. Returns
// false when another worker already claimed the campaign (or it was
// cancelled in the meantime).
func (s *Store) ClaimCampaignForSending(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE archway_campaigns
		SET status = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, CampaignSending, CampaignDraft, CampaignScheduled)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetCampaignRecipients snapshots the resolved recipient count.
func (s *Store) SetCampaignRecipients(ctx context.Context, id uuid.UUID, total int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE archway_campaigns SET total_recipients = $2, updated_at = NOW() WHERE id = $1`,
		id, total)
	return err
}

// MarkCampaignSent completes a sending campaign.
func (s *Store) MarkCampaignSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archway_campaigns
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, CampaignSent, CampaignSending)
	return err
}

// MarkCampaignFailed records an outer pipeline failure.
func (s *Store) MarkCampaignFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archway_campaigns
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, CampaignFailed)
	return err
}

// campaignCounterFields whitelists counter columns for IncrementCampaignCounter.
var campaignCounterFields = map[string]bool{
	"sent_count":   true,
	"open_count":   true,
	"click_count":  true,
	"bounce_count": true,
}

// IncrementCampaignCounter atomically bumps one aggregate counter.
func (s *Store) IncrementCampaignCounter(ctx context.Context, id uuid.UUID, field string) error {
	if !campaignCounterFields[field] {
		return fmt.Errorf("unknown campaign counter field %q", field)
	}
	query := fmt.Sprintf(
		`UPDATE archway_campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1`,
		field, field)
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// ResolveRecipients returns the de-duplicated recipient set for a
// campaign: the union of its segments' active confirmed members, or all
// active confirmed subscribers when the campaign targets no segments.
func (s *Store) ResolveRecipients(ctx context.Context, campaignID uuid.UUID) ([]*Subscriber, error) {
	segIDs, err := s.getCampaignSegmentIDs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(segIDs) == 0 {
		return s.GetAllActiveConfirmed(ctx)
	}

	query := `SELECT DISTINCT ` + prefixColumns("sub", subscriberColumns) + `
		FROM archway_subscribers sub
		JOIN archway_segment_members m ON m.subscriber_id = sub.id
		WHERE m.segment_id = ANY($1) AND sub.is_active = true AND sub.confirmed = true`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(segIDs))
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
// Deliveries
// =============================================================================

const deliveryColumns = `id, campaign_id, subscriber_id, tracking_key, status, sent_at,
	opened_at, clicked_at, open_count, click_count, attempts, next_attempt_at,
	error_message, created_at, updated_at`

func scanDelivery(row interface{ Scan(...any) error }) (*Delivery, error) {
	d := &Delivery{}
	err := row.Scan(&d.ID, &d.CampaignID, &d.SubscriberID, &d.TrackingKey, &d.Status,
		&d.SentAt, &d.OpenedAt, &d.ClickedAt, &d.OpenCount, &d.ClickCount,
		&d.Attempts, &d.NextAttemptAt, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// EnqueueDeliveries creates pending delivery rows for the given
// subscribers. The unique (campaign_id, subscriber_id) constraint makes
// this idempotent, so a crashed enqueue can simply run again.
func (s *Store) EnqueueDeliveries(ctx context.Context, campaignID uuid.UUID, subscriberIDs []uuid.UUID) (int, error) {
	if len(subscriberIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO archway_deliveries
		(id, campaign_id, subscriber_id, tracking_key, status, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), NOW())
		ON CONFLICT (campaign_id, subscriber_id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	created := 0
	for _, subID := range subscriberIDs {
		res, err := stmt.ExecContext(ctx, uuid.New(), campaignID, subID, NewTrackingKey(), DeliveryPending)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// ClaimPendingDeliveries locks and returns a batch of due pending
// deliveries. SKIP LOCKED lets multiple workers drain the same campaign
// without stepping on each other; the rows stay pending until the worker
// reports an outcome, so a crash releases them for the next claim.
func (s *Store) ClaimPendingDeliveries(ctx context.Context, limit int) ([]*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM archway_deliveries
		WHERE status = $1 AND next_attempt_at <= NOW()
		  AND campaign_id IN (SELECT id FROM archway_campaigns WHERE status = $2)
		ORDER BY next_attempt_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, DeliveryPending, CampaignSending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*Delivery
	var ids []uuid.UUID
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) > 0 {
		// Push the claimed rows into the future so a concurrent poll
		// does not re-claim them while this batch is in flight.
		if _, err := tx.ExecContext(ctx,
			`UPDATE archway_deliveries SET next_attempt_at = NOW() + INTERVAL '5 minutes', updated_at = NOW()
			 WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
			return nil, err
		}
	}
	return deliveries, tx.Commit()
}

// MarkDeliverySent records a successful send.
func (s *Store) MarkDeliverySent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archway_deliveries
		SET status = $2, sent_at = NOW(), error_message = '', updated_at = NOW()
		WHERE id = $1`,
		id, DeliverySent)
	return err
}

// RescheduleDelivery bumps the attempt counter and schedules a retry.
func (s *Store) RescheduleDelivery(ctx context.Context, id uuid.UUID, nextAttempt time.Time, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archway_deliveries
		SET attempts = attempts + 1, next_attempt_at = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1`,
		id, nextAttempt, errMsg)
	return err
}

// FailDelivery marks a delivery permanently failed.
func (s *Store) FailDelivery(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archway_deliveries
		SET status = $2, attempts = attempts + 1, error_message = $3, updated_at = NOW()
		WHERE id = $1`,
		id, DeliveryFailed, errMsg)
	return err
}

// MarkDeliveryUnsubscribed records a tracking-key unsubscribe.
func (s *Store) MarkDeliveryUnsubscribed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archway_deliveries
		SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, DeliveryUnsubscribed)
	return err
}

// GetDeliveryByTrackingKey looks up a delivery by its tracking key.
func (s *Store) GetDeliveryByTrackingKey(ctx context.Context, key string) (*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM archway_deliveries WHERE tracking_key = $1`
	return scanDelivery(s.db.QueryRowContext(ctx, query, key))
}

// CountPendingDeliveries returns how many deliveries of a campaign are
// still pending (including scheduled retries).
func (s *Store) CountPendingDeliveries(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archway_deliveries WHERE campaign_id = $1 AND status = $2`,
		campaignID, DeliveryPending).Scan(&n)
	return n, err
}

// GetSendingCampaignIDs lists campaigns currently in the sending state,
// used by the completion sweep.
func (s *Store) GetSendingCampaignIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM archway_campaigns WHERE status = $1`, CampaignSending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// Engagement recording
// =============================================================================

// OpenResult reports what an open-tracking hit changed.
type OpenResult struct {
	DeliveryID uuid.UUID
	CampaignID uuid.UUID
	FirstOpen  bool
}

// RecordOpen registers an open event for a tracking key. opened_at is set
// exactly once; open_count grows on every hit. Returns (nil, nil) for
// unknown keys — the caller serves the pixel regardless.
//
// NOW() is fixed for the whole statement, so opened_at = NOW() in the
// RETURNING clause holds only when this hit backfilled opened_at. A click
// recorded before any pixel hit already counts as the first open, and the
// later pixel must not report it again.
func (s *Store) RecordOpen(ctx context.Context, key string) (*OpenResult, error) {
	query := `UPDATE archway_deliveries
		SET open_count = open_count + 1,
		    opened_at = COALESCE(opened_at, NOW()),
		    status = CASE WHEN status IN ($2, $3) THEN $4 ELSE status END,
		    updated_at = NOW()
		WHERE tracking_key = $1
		RETURNING id, campaign_id, opened_at = NOW()`

	var res OpenResult
	err := s.db.QueryRowContext(ctx, query, key, DeliverySent, DeliveryDelivered, DeliveryOpened).
		Scan(&res.DeliveryID, &res.CampaignID, &res.FirstOpen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ClickResult reports what a click-tracking hit changed. FirstOpen is
// set when this click backfilled the open that no pixel ever reported.
type ClickResult struct {
	DeliveryID uuid.UUID
	CampaignID uuid.UUID
	FirstClick bool
	FirstOpen  bool
}

// RecordClick registers a click event: bumps the delivery counters, sets
// first-click (and backfills first-open, since a click implies the email
// was opened), and appends the LinkClick log row, all in one transaction.
// Returns (nil, nil) for unknown keys.
func (s *Store) RecordClick(ctx context.Context, key, url, ip, userAgent string) (*ClickResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `UPDATE archway_deliveries
		SET click_count = click_count + 1,
		    clicked_at = COALESCE(clicked_at, NOW()),
		    opened_at = COALESCE(opened_at, NOW()),
		    status = CASE WHEN status IN ($2, $3, $4) THEN $5 ELSE status END,
		    updated_at = NOW()
		WHERE tracking_key = $1
		RETURNING id, campaign_id, click_count, opened_at = NOW()`

	var res ClickResult
	var clickCount int
	err = tx.QueryRowContext(ctx, query, key, DeliverySent, DeliveryDelivered, DeliveryOpened, DeliveryClicked).
		Scan(&res.DeliveryID, &res.CampaignID, &clickCount, &res.FirstOpen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res.FirstClick = clickCount == 1

	if _, err := tx.ExecContext(ctx, `INSERT INTO archway_link_clicks
		(id, delivery_id, url, ip_address, user_agent, clicked_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.New(), res.DeliveryID, url, ip, userAgent); err != nil {
		return nil, err
	}

	return &res, tx.Commit()
}

// ListLinkClicks returns the click log for a delivery, newest first.
func (s *Store) ListLinkClicks(ctx context.Context, deliveryID uuid.UUID) ([]*LinkClick, error) {
	query := `SELECT id, delivery_id, url, ip_address, user_agent, clicked_at
		FROM archway_link_clicks WHERE delivery_id = $1 ORDER BY clicked_at DESC`
	rows, err := s.db.QueryContext(ctx, query, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clicks []*LinkClick
	for rows.Next() {
		lc := &LinkClick{}
		if err := rows.Scan(&lc.ID, &lc.DeliveryID, &lc.URL, &lc.IPAddress, &lc.UserAgent, &lc.ClickedAt); err != nil {
			return nil, err
		}
		clicks = append(clicks, lc)
	}
	return clicks, rows.Err()
}
