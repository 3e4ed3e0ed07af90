package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/httputil"
)

type campaignRequest struct {
	Name       string      `json:"name"`
	TemplateID uuid.UUID   `json:"template_id"`
	SegmentIDs []uuid.UUID `json:"segment_ids"`
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	campaigns, err := h.store.ListCampaigns(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": campaigns})
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	tpl, err := h.store.GetTemplate(r.Context(), req.TemplateID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if tpl == nil {
		httputil.BadRequest(w, "template not found")
		return
	}

	c := &newsletter.Campaign{
		Name:       req.Name,
		TemplateID: req.TemplateID,
		SegmentIDs: req.SegmentIDs,
		Status:     newsletter.CampaignDraft,
	}
	if err := h.store.CreateCampaign(r.Context(), c); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if c == nil {
		httputil.NotFound(w, "campaign not found")
		return
	}
	httputil.OK(w, c)
}

type scheduleRequest struct {
	// ScheduledAt defaults to now, i.e. "send as soon as the scheduler
	// polls".
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// ScheduleCampaign moves a draft to scheduled. The worker picks it up
// once scheduled_at arrives.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req scheduleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	at := time.Now().UTC()
	if req.ScheduledAt != nil {
		at = req.ScheduledAt.UTC()
	}

	err := h.store.ScheduleCampaign(r.Context(), id, at)
	switch {
	case errors.Is(err, newsletter.ErrInvalidTransition):
		httputil.Conflict(w, "only draft campaigns can be scheduled")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]any{"message": "campaign scheduled", "scheduled_at": at})
	}
}

// SendCampaignNow queues a draft or scheduled campaign for immediate
// pickup. The actual send still runs through the worker pipeline so it
// gets the same locking, batching, and retry behavior as a timed send.
func (h *Handlers) SendCampaignNow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	err := h.store.SendCampaignNow(r.Context(), id)
	switch {
	case errors.Is(err, newsletter.ErrInvalidTransition):
		httputil.Conflict(w, "only draft or scheduled campaigns can be sent")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]string{"message": "campaign queued for sending"})
	}
}

// CancelCampaign cancels a draft or scheduled campaign. A campaign
// that has started sending cannot be cancelled.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	err := h.store.CancelCampaign(r.Context(), id)
	switch {
	case errors.Is(err, newsletter.ErrInvalidTransition):
		httputil.Conflict(w, "campaign cannot be cancelled in its current state")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]string{"message": "campaign cancelled"})
	}
}

// CampaignStats returns the aggregate counters plus derived rates.
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if c == nil {
		httputil.NotFound(w, "campaign not found")
		return
	}
	httputil.OK(w, map[string]any{
		"campaign_id":      c.ID,
		"status":           c.Status,
		"total_recipients": c.TotalRecipients,
		"sent_count":       c.SentCount,
		"open_count":       c.OpenCount,
		"click_count":      c.ClickCount,
		"bounce_count":     c.BounceCount,
		"rates":            c.CalculateStats(),
	})
}
