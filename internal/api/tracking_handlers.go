package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

// TrackOpen records an email open and serves the pixel. The pixel is
// always served, whatever happens to the lookup: a broken tracking key
// must never show a broken image in someone's inbox.
func (h *Handlers) TrackOpen(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sig := r.URL.Query().Get("s")

	if h.tracking.Verify(key, sig) {
		res, err := h.store.RecordOpen(r.Context(), key)
		if err != nil {
			logger.Error("record open", "error", err)
		} else if res != nil && res.FirstOpen {
			if err := h.store.IncrementCampaignCounter(r.Context(), res.CampaignID, "open_count"); err != nil {
				logger.Error("increment open count", "campaign_id", res.CampaignID, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(newsletter.TransparentGIF)
}

// TrackClick records a click and redirects to the original URL. The
// redirect always happens, even for an unknown or tampered key; a
// failed lookup must not strand the reader on an error page.
func (h *Handlers) TrackClick(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sig := r.URL.Query().Get("s")
	target := r.URL.Query().Get("url")

	if h.tracking.Verify(key, sig) {
		res, err := h.store.RecordClick(r.Context(), key, target,
			newsletter.ClientIP(r), r.UserAgent())
		if err != nil {
			logger.Error("record click", "error", err)
		} else if res != nil {
			if res.FirstClick {
				if err := h.store.IncrementCampaignCounter(r.Context(), res.CampaignID, "click_count"); err != nil {
					logger.Error("increment click count", "campaign_id", res.CampaignID, "error", err)
				}
			}
			if res.FirstOpen {
				if err := h.store.IncrementCampaignCounter(r.Context(), res.CampaignID, "open_count"); err != nil {
					logger.Error("increment open count", "campaign_id", res.CampaignID, "error", err)
				}
			}
		}
	}

	if target == "" {
		target = h.news.BaseURL()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// UnsubscribeByKey is the one-click unsubscribe link embedded in each
// email. It deactivates the subscriber behind the delivery's tracking
// key.
func (h *Handlers) UnsubscribeByKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sig := r.URL.Query().Get("s")

	if h.tracking.Verify(key, sig) {
		if err := h.news.UnsubscribeByTrackingKey(r.Context(), key); err != nil {
			logger.Error("unsubscribe by key", "error", err)
		}
	}

	writeUnsubscribedPage(w)
}

// UnsubscribeByEmail serves the unsubscribe link in automation emails,
// which carry no per-delivery tracking key. Unknown addresses still get
// the confirmation page; the link must not error in someone's inbox.
func (h *Handlers) UnsubscribeByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email != "" {
		if err := h.news.Unsubscribe(r.Context(), email); err != nil &&
			!errors.Is(err, newsletter.ErrNotSubscribed) {
			logger.Error("unsubscribe by email", "error", err)
		}
	}

	writeUnsubscribedPage(w)
}

func writeUnsubscribedPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html><head><title>Unsubscribed</title></head>
<body style="font-family:sans-serif;text-align:center;padding:4rem">
<h1>You have been unsubscribed</h1>
<p>You will no longer receive our newsletter.</p>
<p dir="rtl" lang="ar">تم إلغاء اشتراكك في النشرة البريدية.</p>
</body></html>`))
}
