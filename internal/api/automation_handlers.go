package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/pkg/httputil"
)

func (h *Handlers) ListAutomations(w http.ResponseWriter, r *http.Request) {
	autos, err := h.autoStore.ListAutomations(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"automations": autos})
}

func (h *Handlers) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	var a automation.Automation
	if !httputil.Decode(w, r, &a) {
		return
	}
	if a.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	err := h.autoStore.CreateAutomation(r.Context(), &a)
	switch {
	case errors.Is(err, automation.ErrInvalidTrigger):
		httputil.BadRequest(w, "unknown trigger")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.Created(w, a)
	}
}

func (h *Handlers) GetAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.autoStore.GetAutomation(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if a == nil {
		httputil.NotFound(w, "automation not found")
		return
	}
	httputil.OK(w, a)
}

func (h *Handlers) UpdateAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var a automation.Automation
	if !httputil.Decode(w, r, &a) {
		return
	}
	a.ID = id

	err := h.autoStore.UpdateAutomation(r.Context(), &a)
	switch {
	case errors.Is(err, automation.ErrInvalidTrigger):
		httputil.BadRequest(w, "unknown trigger")
	case errors.Is(err, automation.ErrAutomationMissing):
		httputil.NotFound(w, "automation not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, a)
	}
}

func (h *Handlers) DeleteAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.autoStore.DeleteAutomation(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

type stepRequest struct {
	StepOrder  int       `json:"step_order"`
	TemplateID uuid.UUID `json:"template_id"`
	DelayDays  int       `json:"delay_days"`
	IsActive   bool      `json:"is_active"`
}

func (h *Handlers) CreateAutomationStep(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req stepRequest
	if !httputil.Decode(w, r, &req) {
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

	st := &automation.Step{
		AutomationID: id,
		StepOrder:    req.StepOrder,
		TemplateID:   req.TemplateID,
		DelayDays:    req.DelayDays,
		IsActive:     req.IsActive,
	}
	if err := h.autoStore.CreateStep(r.Context(), st); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, st)
}

func (h *Handlers) DeleteAutomationStep(w http.ResponseWriter, r *http.Request) {
	stepID, err := uuid.Parse(chi.URLParam(r, "stepID"))
	if err != nil {
		httputil.BadRequest(w, "invalid step id")
		return
	}
	if err := h.autoStore.DeleteStep(r.Context(), stepID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ListAutomationExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	execs, err := h.autoStore.ListExecutions(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"executions": execs, "count": len(execs)})
}
