package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the router. Tracking and public endpoints carry no
// auth; admin routes are expected to sit behind an upstream gateway.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/newsletter", func(r chi.Router) {
			// public subscription lifecycle
			r.Post("/subscribe", h.Subscribe)
			// GET for the emailed link, POST for frontend forms
			r.Get("/confirm/{token}", h.Confirm)
			r.Post("/confirm/{token}", h.Confirm)
			r.Post("/unsubscribe", h.Unsubscribe)

			// tracking endpoints referenced from sent email
			r.Get("/track/open/{key}", h.TrackOpen)
			r.Get("/track/click/{key}", h.TrackClick)
			r.Get("/unsubscribe/{key}", h.UnsubscribeByKey)
			// automation emails carry no tracking key and link by address
			r.Get("/unsubscribe", h.UnsubscribeByEmail)

			// admin surface
			r.Get("/subscribers", h.ListSubscribers)

			r.Route("/segments", func(r chi.Router) {
				r.Get("/", h.ListSegments)
				r.Post("/", h.CreateSegment)
				r.Get("/{id}", h.GetSegment)
				r.Put("/{id}", h.UpdateSegment)
				r.Get("/{id}/members", h.ListSegmentMembers)
				r.Post("/{id}/members", h.AddSegmentMember)
				r.Delete("/{id}/members/{subscriberID}", h.RemoveSegmentMember)
			})

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", h.ListTemplates)
				r.Post("/", h.CreateTemplate)
				r.Get("/{id}", h.GetTemplate)
				r.Put("/{id}", h.UpdateTemplate)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.ListCampaigns)
				r.Post("/", h.CreateCampaign)
				r.Get("/{id}", h.GetCampaign)
				r.Post("/{id}/schedule", h.ScheduleCampaign)
				r.Post("/{id}/send", h.SendCampaignNow)
				r.Post("/{id}/cancel", h.CancelCampaign)
				r.Get("/{id}/stats", h.CampaignStats)
			})

			r.Route("/automations", func(r chi.Router) {
				r.Get("/", h.ListAutomations)
				r.Post("/", h.CreateAutomation)
				r.Get("/{id}", h.GetAutomation)
				r.Put("/{id}", h.UpdateAutomation)
				r.Delete("/{id}", h.DeleteAutomation)
				r.Post("/{id}/steps", h.CreateAutomationStep)
				r.Delete("/{id}/steps/{stepID}", h.DeleteAutomationStep)
				r.Get("/{id}/executions", h.ListAutomationExecutions)
			})
		})

		r.Route("/email/configurations", func(r chi.Router) {
			r.Get("/", h.ListEmailConfigs)
			r.Post("/", h.CreateEmailConfig)
			r.Get("/{id}", h.GetEmailConfig)
			r.Put("/{id}", h.UpdateEmailConfig)
			r.Delete("/{id}", h.DeleteEmailConfig)
			r.Post("/{id}/activate", h.ActivateEmailConfig)
			r.Post("/{id}/test", h.TestEmailConfig)
		})

		// public site content
		r.Get("/projects", h.ListProjects)
		r.Get("/projects/{slug}", h.GetProjectBySlug)
		r.Get("/services", h.ListServices)
		r.Get("/testimonials", h.ListTestimonials)
		r.Get("/faqs", h.ListFAQs)
		r.Post("/contact", h.SubmitContactMessage)

		// content admin
		r.Route("/admin", func(r chi.Router) {
			r.Post("/projects", h.CreateProject)
			r.Put("/projects/{id}", h.UpdateProject)
			r.Delete("/projects/{id}", h.DeleteProject)
			r.Post("/services", h.CreateService)
			r.Put("/services/{id}", h.UpdateService)
			r.Delete("/services/{id}", h.DeleteService)
			r.Post("/testimonials", h.CreateTestimonial)
			r.Delete("/testimonials/{id}", h.DeleteTestimonial)
			r.Post("/faqs", h.CreateFAQ)
			r.Put("/faqs/{id}", h.UpdateFAQ)
			r.Delete("/faqs/{id}", h.DeleteFAQ)
			r.Get("/contact-messages", h.ListContactMessages)
			r.Post("/contact-messages/{id}/read", h.MarkContactMessageRead)
			r.Post("/media", h.UploadMedia)
		})
	})

	return r
}
