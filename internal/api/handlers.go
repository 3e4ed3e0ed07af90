// Package api exposes the HTTP surface: public newsletter and content
// endpoints, tracking redirects, and the admin CRUD routes.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/content"
	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/media"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/httputil"
)

// Handlers carries the services the HTTP layer dispatches into.
type Handlers struct {
	db          *sql.DB
	news        *newsletter.Service
	store       *newsletter.Store
	tracking    *newsletter.TrackingService
	autoStore   *automation.Store
	mailerStore *mailer.Store
	sender      newsletter.EmailSender
	content     *content.CachedStore
	uploader    *media.Uploader // nil when media storage is not configured
	startedAt   time.Time
}

func NewHandlers(db *sql.DB, news *newsletter.Service, store *newsletter.Store,
	tracking *newsletter.TrackingService, autoStore *automation.Store,
	mailerStore *mailer.Store, sender newsletter.EmailSender,
	contentStore *content.CachedStore, uploader *media.Uploader) *Handlers {
	return &Handlers{
		db:          db,
		news:        news,
		store:       store,
		tracking:    tracking,
		autoStore:   autoStore,
		mailerStore: mailerStore,
		sender:      sender,
		content:     contentStore,
		uploader:    uploader,
		startedAt:   time.Now(),
	}
}

// HealthCheck reports process liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "ok"
	if err := h.db.PingContext(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"status":   status,
		"database": dbStatus,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
	})
}
