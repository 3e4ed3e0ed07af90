package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ibrahimamir22/archway/internal/content"
	"github.com/Ibrahimamir22/archway/internal/i18n"
	"github.com/Ibrahimamir22/archway/internal/pkg/httputil"
)

// requestLang picks the response language from ?lang= or
// Accept-Language.
func requestLang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return i18n.NormalizeLang(lang)
	}
	return i18n.NormalizeLang(r.Header.Get("Accept-Language"))
}

// localizedProject flattens the bilingual fields for one language.
type localizedProject struct {
	*content.Project
	TitleText       string `json:"title_text"`
	DescriptionText string `json:"description_text"`
	LocationText    string `json:"location_text"`
}

func localizeProject(p *content.Project, lang string) localizedProject {
	return localizedProject{
		Project:         p,
		TitleText:       p.Title.Resolve(lang),
		DescriptionText: p.Description.Resolve(lang),
		LocationText:    p.Location.Resolve(lang),
	}
}

func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	lang := requestLang(r)
	featuredOnly := r.URL.Query().Get("featured") == "true"

	projects, err := h.content.PublishedProjects(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	out := make([]localizedProject, 0, len(projects))
	for _, p := range projects {
		if featuredOnly && !p.IsFeatured {
			continue
		}
		out = append(out, localizeProject(p, lang))
	}
	httputil.OK(w, map[string]any{"projects": out, "lang": lang})
}

func (h *Handlers) GetProjectBySlug(w http.ResponseWriter, r *http.Request) {
	lang := requestLang(r)
	p, err := h.content.GetProjectBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if p == nil || !p.IsPublished {
		httputil.NotFound(w, "project not found")
		return
	}
	httputil.OK(w, localizeProject(p, lang))
}

func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.content.ActiveServices(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"services": services, "lang": requestLang(r)})
}

func (h *Handlers) ListTestimonials(w http.ResponseWriter, r *http.Request) {
	testimonials, err := h.content.PublishedTestimonials(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"testimonials": testimonials, "lang": requestLang(r)})
}

func (h *Handlers) ListFAQs(w http.ResponseWriter, r *http.Request) {
	faqs, err := h.content.PublishedFAQs(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"faqs": faqs, "lang": requestLang(r)})
}

func (h *Handlers) SubmitContactMessage(w http.ResponseWriter, r *http.Request) {
	var msg content.ContactMessage
	if !httputil.Decode(w, r, &msg) {
		return
	}
	err := h.content.CreateContactMessage(r.Context(), &msg)
	switch {
	case errors.Is(err, content.ErrEmptyField):
		httputil.BadRequest(w, "name, email and message are required")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.Created(w, map[string]string{"message": "thank you, we will be in touch"})
	}
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var p content.Project
	if !httputil.Decode(w, r, &p) {
		return
	}
	err := h.content.CreateProject(r.Context(), &p)
	switch {
	case errors.Is(err, content.ErrEmptyField):
		httputil.BadRequest(w, "slug and title are required")
	case errors.Is(err, content.ErrSlugTaken):
		httputil.Conflict(w, "slug already in use")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.Created(w, p)
	}
}

func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var p content.Project
	if !httputil.Decode(w, r, &p) {
		return
	}
	p.ID = id
	err := h.content.UpdateProject(r.Context(), &p)
	switch {
	case errors.Is(err, content.ErrNotFound):
		httputil.NotFound(w, "project not found")
	case errors.Is(err, content.ErrSlugTaken):
		httputil.Conflict(w, "slug already in use")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.OK(w, p)
	}
}

func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.content.DeleteProject(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.content.Invalidate(r.Context())
	httputil.NoContent(w)
}

func (h *Handlers) CreateService(w http.ResponseWriter, r *http.Request) {
	var v content.Service
	if !httputil.Decode(w, r, &v) {
		return
	}
	err := h.content.CreateService(r.Context(), &v)
	switch {
	case errors.Is(err, content.ErrEmptyField):
		httputil.BadRequest(w, "slug and title are required")
	case errors.Is(err, content.ErrSlugTaken):
		httputil.Conflict(w, "slug already in use")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.Created(w, v)
	}
}

func (h *Handlers) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var v content.Service
	if !httputil.Decode(w, r, &v) {
		return
	}
	v.ID = id
	err := h.content.UpdateService(r.Context(), &v)
	switch {
	case errors.Is(err, content.ErrNotFound):
		httputil.NotFound(w, "service not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.OK(w, v)
	}
}

func (h *Handlers) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.content.DeleteService(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.content.Invalidate(r.Context())
	httputil.NoContent(w)
}

func (h *Handlers) CreateTestimonial(w http.ResponseWriter, r *http.Request) {
	var tm content.Testimonial
	if !httputil.Decode(w, r, &tm) {
		return
	}
	err := h.content.CreateTestimonial(r.Context(), &tm)
	switch {
	case errors.Is(err, content.ErrEmptyField), errors.Is(err, content.ErrBadRating):
		httputil.BadRequest(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.Created(w, tm)
	}
}

func (h *Handlers) DeleteTestimonial(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.content.DeleteTestimonial(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.content.Invalidate(r.Context())
	httputil.NoContent(w)
}

func (h *Handlers) CreateFAQ(w http.ResponseWriter, r *http.Request) {
	var f content.FAQ
	if !httputil.Decode(w, r, &f) {
		return
	}
	err := h.content.CreateFAQ(r.Context(), &f)
	switch {
	case errors.Is(err, content.ErrEmptyField):
		httputil.BadRequest(w, "question and answer are required")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.Created(w, f)
	}
}

func (h *Handlers) UpdateFAQ(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var f content.FAQ
	if !httputil.Decode(w, r, &f) {
		return
	}
	f.ID = id
	err := h.content.UpdateFAQ(r.Context(), &f)
	switch {
	case errors.Is(err, content.ErrNotFound):
		httputil.NotFound(w, "faq not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		h.content.Invalidate(r.Context())
		httputil.OK(w, f)
	}
}

func (h *Handlers) DeleteFAQ(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.content.DeleteFAQ(r.Context(), id); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.content.Invalidate(r.Context())
	httputil.NoContent(w)
}

func (h *Handlers) ListContactMessages(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	msgs, err := h.content.ListContactMessages(r.Context(), unreadOnly, limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (h *Handlers) MarkContactMessageRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	err := h.content.MarkContactMessageRead(r.Context(), id)
	switch {
	case errors.Is(err, content.ErrNotFound):
		httputil.NotFound(w, "message not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]string{"message": "marked read"})
	}
}

// UploadMedia accepts a multipart image upload and returns the stored
// URLs.
func (h *Handlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		httputil.Error(w, http.StatusNotImplemented, "media storage is not configured")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	img, err := h.uploader.Upload(r.Context(), header.Filename, file)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, img)
}
