package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/httputil"
)

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httputil.BadRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

type subscribeRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"language_preference"`
}

// Subscribe starts (or restarts) double opt-in for an email address.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	sub, err := h.news.Subscribe(r.Context(), req.Email, req.FirstName, req.LastName, req.Language)
	switch {
	case errors.Is(err, newsletter.ErrInvalidEmail):
		httputil.BadRequest(w, "invalid email address")
	case errors.Is(err, newsletter.ErrAlreadySubscribed):
		httputil.BadRequest(w, "email is already subscribed")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.Created(w, map[string]any{
			"subscriber": sub,
			"message":    "confirmation email sent",
		})
	}
}

// Confirm completes double opt-in via the emailed token.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	sub, err := h.news.Confirm(r.Context(), chi.URLParam(r, "token"))
	switch {
	case errors.Is(err, newsletter.ErrInvalidToken):
		httputil.BadRequest(w, "invalid or expired confirmation token")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]any{
			"subscriber": sub,
			"message":    "subscription confirmed",
		})
	}
}

type unsubscribeRequest struct {
	Email string `json:"email"`
}

func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.news.Unsubscribe(r.Context(), req.Email)
	switch {
	case errors.Is(err, newsletter.ErrNotSubscribed):
		httputil.BadRequest(w, "email is not subscribed")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]string{"message": "unsubscribed"})
	}
}

func (h *Handlers) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	subs, err := h.store.ListSubscribers(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"subscribers": subs, "count": len(subs)})
}

type segmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := h.store.ListSegments(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"segments": segs})
}

func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	seg := &newsletter.Segment{Name: req.Name, Description: req.Description}
	if err := h.store.CreateSegment(r.Context(), seg); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, seg)
}

func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	seg, err := h.store.GetSegment(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if seg == nil {
		httputil.NotFound(w, "segment not found")
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	seg := &newsletter.Segment{ID: id, Name: req.Name, Description: req.Description}
	if err := h.store.UpdateSegment(r.Context(), seg); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) ListSegmentMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	members, err := h.store.GetSegmentMembers(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"members": members, "count": len(members)})
}

type addMemberRequest struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
}

func (h *Handlers) AddSegmentMember(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.news.AddToSegment(r.Context(), id, req.SubscriberID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"message": "member added"})
}

func (h *Handlers) RemoveSegmentMember(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	subID, err := uuid.Parse(chi.URLParam(r, "subscriberID"))
	if err != nil {
		httputil.BadRequest(w, "invalid subscriber id")
		return
	}
	if err := h.store.RemoveSegmentMember(r.Context(), id, subID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.store.ListTemplates(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"templates": tpls})
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl newsletter.Template
	if !httputil.Decode(w, r, &tpl) {
		return
	}
	if tpl.Name == "" || tpl.Subject.IsEmpty() {
		httputil.BadRequest(w, "name and subject are required")
		return
	}
	if tpl.Type != "" && !newsletter.ValidTemplateType(tpl.Type) {
		httputil.BadRequest(w, "unknown template type")
		return
	}
	if err := h.store.CreateTemplate(r.Context(), &tpl); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, tpl)
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	tpl, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if tpl == nil {
		httputil.NotFound(w, "template not found")
		return
	}
	httputil.OK(w, tpl)
}

func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var tpl newsletter.Template
	if !httputil.Decode(w, r, &tpl) {
		return
	}
	tpl.ID = id
	if err := h.store.UpdateTemplate(r.Context(), &tpl); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, tpl)
}
