package api

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/content"
	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
)

type stubSender struct{ sent int }

func (s *stubSender) Send(context.Context, *mailer.Message) error {
	s.sent++
	return nil
}

// newTestServer wires a full router against a sqlmock database.
func newTestServer(t *testing.T) (*httptest.Server, sqlmock.Sqlmock, *newsletter.TrackingService, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	store := newsletter.NewStore(db)
	tracking := newsletter.NewTrackingService("test-secret", "https://archway.example.com")
	renderer := newsletter.NewRenderer()
	news := newsletter.NewService(store, &stubSender{}, renderer, "https://archway.example.com")

	h := NewHandlers(db, news, store, tracking,
		automation.NewStore(db), mailer.NewStore(db), &stubSender{},
		content.NewCachedStore(content.NewStore(db), nil), nil)
	srv := httptest.NewServer(SetupRoutes(h, nil))

	return srv, mock, tracking, func() {
		srv.Close()
		db.Close()
	}
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestTrackOpenServesPixelAndRecords(t *testing.T) {
	srv, mock, tracking, cleanup := newTestServer(t)
	defer cleanup()

	deliveryID := uuid.New()
	campaignID := uuid.New()
	key := "abcdef0123456789abcdef0123456789"

	// first open: opened_at set, campaign open_count incremented
	mock.ExpectQuery(`UPDATE archway_deliveries`).
		WithArgs(key, newsletter.DeliverySent, newsletter.DeliveryDelivered, newsletter.DeliveryOpened).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "first_open"}).
			AddRow(deliveryID, campaignID, true))
	mock.ExpectExec(`open_count = open_count \+ 1`).
		WithArgs(campaignID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := get(t, srv.URL+"/api/v1/newsletter/track/open/"+key+"?s="+tracking.Sign(key))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content type = %q, want image/gif", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("GIF89a")) {
		t.Error("response body is not a GIF")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTrackOpenSecondHitSkipsCampaignCounter(t *testing.T) {
	srv, mock, tracking, cleanup := newTestServer(t)
	defer cleanup()

	key := "abcdef0123456789abcdef0123456789"

	// opened_at was already set; only the delivery counter moves
	mock.ExpectQuery(`UPDATE archway_deliveries`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "first_open"}).
			AddRow(uuid.New(), uuid.New(), false))

	resp := get(t, srv.URL+"/api/v1/newsletter/track/open/"+key+"?s="+tracking.Sign(key))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTrackOpenBadSignatureStillServesPixel(t *testing.T) {
	srv, _, _, cleanup := newTestServer(t)
	defer cleanup()

	// no DB expectations: a tampered signature records nothing
	resp := get(t, srv.URL+"/api/v1/newsletter/track/open/somekey?s=forged")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content type = %q, want image/gif", ct)
	}
}

func TestTrackClickUnknownKeyStillRedirects(t *testing.T) {
	srv, mock, tracking, cleanup := newTestServer(t)
	defer cleanup()

	key := "00000000000000000000000000000000"

	// valid signature but no matching delivery row
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE archway_deliveries`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	resp := get(t, srv.URL+"/api/v1/newsletter/track/click/"+key+
		"?s="+tracking.Sign(key)+"&url=https%3A%2F%2Fexample.com%2Fportfolio")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://example.com/portfolio" {
		t.Errorf("location = %q, want the original url", loc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTrackClickRecordsAndRedirects(t *testing.T) {
	srv, mock, tracking, cleanup := newTestServer(t)
	defer cleanup()

	deliveryID := uuid.New()
	campaignID := uuid.New()
	key := "abcdef0123456789abcdef0123456789"

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE archway_deliveries`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "click_count", "first_open"}).
			AddRow(deliveryID, campaignID, 1, true))
	mock.ExpectExec(`INSERT INTO archway_link_clicks`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	// first click bumps click_count; with no prior pixel opens it also
	// backfills the campaign open counter
	mock.ExpectExec(`click_count = click_count \+ 1`).
		WithArgs(campaignID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`open_count = open_count \+ 1`).
		WithArgs(campaignID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := get(t, srv.URL+"/api/v1/newsletter/track/click/"+key+
		"?s="+tracking.Sign(key)+"&url=https%3A%2F%2Fexample.com%2Fnew-villa")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://example.com/new-villa" {
		t.Errorf("location = %q", loc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTrackClickNoURLFallsBackToSite(t *testing.T) {
	srv, _, _, cleanup := newTestServer(t)
	defer cleanup()

	// forged signature and no url parameter: redirect to the site base
	resp := get(t, srv.URL+"/api/v1/newsletter/track/click/key?s=bad")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://archway.example.com" {
		t.Errorf("location = %q, want site base", loc)
	}
}

func TestUnsubscribeByKeyShowsConfirmation(t *testing.T) {
	srv, mock, tracking, cleanup := newTestServer(t)
	defer cleanup()

	key := "abcdef0123456789abcdef0123456789"
	deliveryID := uuid.New()
	subscriberID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM archway_deliveries WHERE tracking_key`).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "subscriber_id",
			"tracking_key", "status", "sent_at", "opened_at", "clicked_at",
			"open_count", "click_count", "attempts", "next_attempt_at",
			"error_message", "created_at", "updated_at"}).
			AddRow(deliveryID, uuid.New(), subscriberID, key, newsletter.DeliverySent,
				nil, nil, nil, 0, 0, 1, nil, "", now, now))
	mock.ExpectExec(`UPDATE archway_deliveries`).
		WithArgs(deliveryID, newsletter.DeliveryUnsubscribed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE archway_subscribers`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := get(t, srv.URL+"/api/v1/newsletter/unsubscribe/"+key+"?s="+tracking.Sign(key))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.Contains(buf.Bytes(), []byte("unsubscribed")) {
		t.Error("confirmation page missing unsubscribe text")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Drip emails have no delivery row, so their unsubscribe link carries the
// address instead of a tracking key.
func TestUnsubscribeByEmailShowsConfirmation(t *testing.T) {
	srv, mock, _, cleanup := newTestServer(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`UPDATE archway_subscribers`).
		WithArgs("drip@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name",
			"language_preference", "confirmed", "is_active", "confirmation_token",
			"subscribed_at", "confirmed_at", "unsubscribed_at", "created_at", "updated_at"}).
			AddRow(uuid.New(), "drip@example.com", "", "", "en",
				true, false, "tok", now, now, now, now, now))

	resp := get(t, srv.URL+"/api/v1/newsletter/unsubscribe?email=drip%40example.com")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.Contains(buf.Bytes(), []byte("unsubscribed")) {
		t.Error("confirmation page missing unsubscribe text")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUnsubscribeByEmailUnknownAddressStillServesPage(t *testing.T) {
	srv, mock, _, cleanup := newTestServer(t)
	defer cleanup()

	mock.ExpectQuery(`UPDATE archway_subscribers`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	resp := get(t, srv.URL+"/api/v1/newsletter/unsubscribe?email=ghost%40example.com")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
