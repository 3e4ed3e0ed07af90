package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/pkg/httputil"
)

func (h *Handlers) ListEmailConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.mailerStore.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"configurations": configs})
}

func (h *Handlers) CreateEmailConfig(w http.ResponseWriter, r *http.Request) {
	var cfg mailer.EmailConfiguration
	if !httputil.Decode(w, r, &cfg) {
		return
	}
	if cfg.Host == "" || cfg.FromEmail == "" {
		httputil.BadRequest(w, "host and from_email are required")
		return
	}
	if err := h.mailerStore.Create(r.Context(), &cfg); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, cfg)
}

func (h *Handlers) GetEmailConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	cfg, err := h.mailerStore.Get(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if cfg == nil {
		httputil.NotFound(w, "configuration not found")
		return
	}
	httputil.OK(w, cfg)
}

func (h *Handlers) UpdateEmailConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var cfg mailer.EmailConfiguration
	if !httputil.Decode(w, r, &cfg) {
		return
	}
	cfg.ID = id
	if err := h.mailerStore.Update(r.Context(), &cfg); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, cfg)
}

func (h *Handlers) DeleteEmailConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.mailerStore.Delete(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ActivateEmailConfig makes this configuration the one the senders
// use. Any previously active configuration is deactivated in the same
// transaction.
func (h *Handlers) ActivateEmailConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	err := h.mailerStore.Activate(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httputil.NotFound(w, "configuration not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]string{"message": "configuration activated"})
	}
}

type testEmailRequest struct {
	To string `json:"to"`
}

// TestEmailConfig sends a short test message through a configuration
// without activating it.
func (h *Handlers) TestEmailConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req testEmailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.To == "" {
		httputil.BadRequest(w, "to is required")
		return
	}

	cfg, err := h.mailerStore.Get(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if cfg == nil {
		httputil.NotFound(w, "configuration not found")
		return
	}

	smtp, ok := h.sender.(*mailer.SMTPSender)
	if !ok {
		httputil.Error(w, http.StatusNotImplemented, "test sends require the SMTP sender")
		return
	}
	msg := &mailer.Message{
		To:       req.To,
		Subject:  "Archway SMTP test",
		HTMLBody: "<p>This is a test message confirming the SMTP configuration works.</p>",
		TextBody: "This is a test message confirming the SMTP configuration works.",
	}
	if err := smtp.SendWith(r.Context(), cfg, msg); err != nil {
		httputil.Error(w, http.StatusBadGateway, "test send failed: "+err.Error())
		return
	}
	httputil.OK(w, map[string]string{"message": "test email sent"})
}
