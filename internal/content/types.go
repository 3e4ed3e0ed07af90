// Package content holds the public site's bilingual CMS entities:
// portfolio projects, services, testimonials, FAQs, and contact
// messages.
package content

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/i18n"
)

var (
	ErrSlugTaken  = errors.New("slug already in use")
	ErrNotFound   = errors.New("content item not found")
	ErrBadRating  = errors.New("rating must be between 1 and 5")
	ErrEmptyField = errors.New("required field is empty")
)

// Project is a portfolio entry. Gallery holds image URLs beyond the
// cover; DisplayOrder sorts listings (lower first).
type Project struct {
	ID           uuid.UUID          `json:"id"`
	Slug         string             `json:"slug"`
	Title        i18n.LocalizedText `json:"title"`
	Description  i18n.LocalizedText `json:"description"`
	Location     i18n.LocalizedText `json:"location"`
	CoverImage   string             `json:"cover_image,omitempty"`
	Gallery      []string           `json:"gallery,omitempty"`
	IsFeatured   bool               `json:"is_featured"`
	IsPublished  bool               `json:"is_published"`
	DisplayOrder int                `json:"display_order"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Service is one of the studio's offerings.
type Service struct {
	ID           uuid.UUID          `json:"id"`
	Slug         string             `json:"slug"`
	Title        i18n.LocalizedText `json:"title"`
	Description  i18n.LocalizedText `json:"description"`
	Icon         string             `json:"icon,omitempty"`
	IsActive     bool               `json:"is_active"`
	DisplayOrder int                `json:"display_order"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Testimonial is a client quote, optionally tied to a project.
type Testimonial struct {
	ID          uuid.UUID          `json:"id"`
	ClientName  string             `json:"client_name"`
	Quote       i18n.LocalizedText `json:"quote"`
	Rating      int                `json:"rating"`
	ProjectID   *uuid.UUID         `json:"project_id,omitempty"`
	IsPublished bool               `json:"is_published"`
	CreatedAt   time.Time          `json:"created_at"`
}

// FAQ is a question/answer pair shown on the site.
type FAQ struct {
	ID           uuid.UUID          `json:"id"`
	Question     i18n.LocalizedText `json:"question"`
	Answer       i18n.LocalizedText `json:"answer"`
	DisplayOrder int                `json:"display_order"`
	IsPublished  bool               `json:"is_published"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ContactMessage is an inbound enquiry from the site's contact form.
type ContactMessage struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields a testimonial cannot do without.
func (t *Testimonial) Validate() error {
	if t.ClientName == "" || t.Quote.IsEmpty() {
		return ErrEmptyField
	}
	if t.Rating < 1 || t.Rating > 5 {
		return ErrBadRating
	}
	return nil
}

// Validate checks the fields a contact message cannot do without.
func (m *ContactMessage) Validate() error {
	if m.Name == "" || m.Email == "" || m.Message == "" {
		return ErrEmptyField
	}
	return nil
}
