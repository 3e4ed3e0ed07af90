package content

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists CMS entities.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

const projectColumns = `id, slug, title_en, title_ar, description_en, description_ar,
	location_en, location_ar, cover_image, gallery, is_featured, is_published,
	display_order, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Slug, &p.Title.EN, &p.Title.AR,
		&p.Description.EN, &p.Description.AR, &p.Location.EN, &p.Location.AR,
		&p.CoverImage, pq.Array(&p.Gallery), &p.IsFeatured, &p.IsPublished,
		&p.DisplayOrder, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.Slug == "" || p.Title.IsEmpty() {
		return ErrEmptyField
	}
	p.ID = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO archway_projects
			(id, slug, title_en, title_ar, description_en, description_ar,
			 location_en, location_ar, cover_image, gallery, is_featured,
			 is_published, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		p.ID, p.Slug, p.Title.EN, p.Title.AR, p.Description.EN, p.Description.AR,
		p.Location.EN, p.Location.AR, p.CoverImage, pq.Array(p.Gallery),
		p.IsFeatured, p.IsPublished, p.DisplayOrder,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM archway_projects WHERE id = $1`, id))
}

func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	return scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM archway_projects WHERE slug = $1`, slug))
}

// ListProjects returns published projects ordered for display.
// publishedOnly=false includes drafts, for the admin surface.
func (s *Store) ListProjects(ctx context.Context, publishedOnly bool) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM archway_projects`
	if publishedOnly {
		query += ` WHERE is_published = true`
	}
	query += ` ORDER BY display_order, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE archway_projects
		SET slug = $2, title_en = $3, title_ar = $4, description_en = $5,
		    description_ar = $6, location_en = $7, location_ar = $8,
		    cover_image = $9, gallery = $10, is_featured = $11,
		    is_published = $12, display_order = $13, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Slug, p.Title.EN, p.Title.AR, p.Description.EN, p.Description.AR,
		p.Location.EN, p.Location.AR, p.CoverImage, pq.Array(p.Gallery),
		p.IsFeatured, p.IsPublished, p.DisplayOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM archway_projects WHERE id = $1`, id)
	return err
}

const serviceColumns = `id, slug, title_en, title_ar, description_en, description_ar,
	icon, is_active, display_order, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (*Service, error) {
	var v Service
	err := row.Scan(&v.ID, &v.Slug, &v.Title.EN, &v.Title.AR,
		&v.Description.EN, &v.Description.AR, &v.Icon, &v.IsActive,
		&v.DisplayOrder, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) CreateService(ctx context.Context, v *Service) error {
	if v.Slug == "" || v.Title.IsEmpty() {
		return ErrEmptyField
	}
	v.ID = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO archway_services
			(id, slug, title_en, title_ar, description_en, description_ar,
			 icon, is_active, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		v.ID, v.Slug, v.Title.EN, v.Title.AR, v.Description.EN, v.Description.AR,
		v.Icon, v.IsActive, v.DisplayOrder,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

func (s *Store) ListServices(ctx context.Context, activeOnly bool) ([]*Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM archway_services`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY display_order, created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		v, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpdateService(ctx context.Context, v *Service) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE archway_services
		SET slug = $2, title_en = $3, title_ar = $4, description_en = $5,
		    description_ar = $6, icon = $7, is_active = $8,
		    display_order = $9, updated_at = NOW()
		WHERE id = $1`,
		v.ID, v.Slug, v.Title.EN, v.Title.AR, v.Description.EN, v.Description.AR,
		v.Icon, v.IsActive, v.DisplayOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteService(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM archway_services WHERE id = $1`, id)
	return err
}

const testimonialColumns = `id, client_name, quote_en, quote_ar, rating,
	project_id, is_published, created_at`

func scanTestimonial(row interface{ Scan(...any) error }) (*Testimonial, error) {
	var t Testimonial
	err := row.Scan(&t.ID, &t.ClientName, &t.Quote.EN, &t.Quote.AR,
		&t.Rating, &t.ProjectID, &t.IsPublished, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTestimonial(ctx context.Context, t *Testimonial) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.ID = uuid.New()
	return s.db.QueryRowContext(ctx, `
		INSERT INTO archway_testimonials
			(id, client_name, quote_en, quote_ar, rating, project_id, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		t.ID, t.ClientName, t.Quote.EN, t.Quote.AR, t.Rating, t.ProjectID, t.IsPublished,
	).Scan(&t.CreatedAt)
}

func (s *Store) ListTestimonials(ctx context.Context, publishedOnly bool) ([]*Testimonial, error) {
	query := `SELECT ` + testimonialColumns + ` FROM archway_testimonials`
	if publishedOnly {
		query += ` WHERE is_published = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Testimonial
	for rows.Next() {
		t, err := scanTestimonial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTestimonial(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM archway_testimonials WHERE id = $1`, id)
	return err
}

const faqColumns = `id, question_en, question_ar, answer_en, answer_ar,
	display_order, is_published, created_at, updated_at`

func scanFAQ(row interface{ Scan(...any) error }) (*FAQ, error) {
	var f FAQ
	err := row.Scan(&f.ID, &f.Question.EN, &f.Question.AR,
		&f.Answer.EN, &f.Answer.AR, &f.DisplayOrder, &f.IsPublished,
		&f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) CreateFAQ(ctx context.Context, f *FAQ) error {
	if f.Question.IsEmpty() || f.Answer.IsEmpty() {
		return ErrEmptyField
	}
	f.ID = uuid.New()
	return s.db.QueryRowContext(ctx, `
		INSERT INTO archway_faqs
			(id, question_en, question_ar, answer_en, answer_ar, display_order, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		f.ID, f.Question.EN, f.Question.AR, f.Answer.EN, f.Answer.AR,
		f.DisplayOrder, f.IsPublished,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
}

func (s *Store) ListFAQs(ctx context.Context, publishedOnly bool) ([]*FAQ, error) {
	query := `SELECT ` + faqColumns + ` FROM archway_faqs`
	if publishedOnly {
		query += ` WHERE is_published = true`
	}
	query += ` ORDER BY display_order, created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FAQ
	for rows.Next() {
		f, err := scanFAQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) UpdateFAQ(ctx context.Context, f *FAQ) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE archway_faqs
		SET question_en = $2, question_ar = $3, answer_en = $4, answer_ar = $5,
		    display_order = $6, is_published = $7, updated_at = NOW()
		WHERE id = $1`,
		f.ID, f.Question.EN, f.Question.AR, f.Answer.EN, f.Answer.AR,
		f.DisplayOrder, f.IsPublished)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteFAQ(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM archway_faqs WHERE id = $1`, id)
	return err
}

func (s *Store) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.ID = uuid.New()
	return s.db.QueryRowContext(ctx, `
		INSERT INTO archway_contact_messages
			(id, name, email, phone, subject, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.Name, m.Email, m.Phone, m.Subject, m.Message,
	).Scan(&m.CreatedAt)
}

func (s *Store) ListContactMessages(ctx context.Context, unreadOnly bool, limit, offset int) ([]*ContactMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, name, email, phone, subject, message, is_read, created_at
		FROM archway_contact_messages`
	if unreadOnly {
		query += ` WHERE is_read = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ContactMessage
	for rows.Next() {
		var m ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Subject,
			&m.Message, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) MarkContactMessageRead(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE archway_contact_messages SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
