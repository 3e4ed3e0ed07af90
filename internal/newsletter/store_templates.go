package newsletter

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const templateColumns = `id, name, type, subject_en, subject_ar, body_html_en, body_html_ar,
	body_text_en, body_text_ar, is_active, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*Template, error) {
	tpl := &Template{}
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Type,
		&tpl.Subject.EN, &tpl.Subject.AR,
		&tpl.BodyHTML.EN, &tpl.BodyHTML.AR,
		&tpl.BodyText.EN, &tpl.BodyText.AR,
		&tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// CreateTemplate creates a new email template.
func (s *Store) CreateTemplate(ctx context.Context, tpl *Template) error {
	tpl.ID = uuid.New()
	if tpl.Type == "" {
		tpl.Type = TemplateRegular
	}
	tpl.CreatedAt = time.Now()
	tpl.UpdatedAt = time.Now()

	query := `INSERT INTO archway_templates (id, name, type, subject_en, subject_ar,
		body_html_en, body_html_ar, body_text_en, body_text_ar, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query, tpl.ID, tpl.Name, tpl.Type,
		tpl.Subject.EN, tpl.Subject.AR, tpl.BodyHTML.EN, tpl.BodyHTML.AR,
		tpl.BodyText.EN, tpl.BodyText.AR, tpl.IsActive, tpl.CreatedAt, tpl.UpdatedAt)
	return err
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM archway_templates WHERE id = $1`
	return scanTemplate(s.db.QueryRowContext(ctx, query, id))
}

// GetActiveTemplateByType returns the most recently updated active
// template of the given type, or nil when none exists. Used to pick the
// confirmation and welcome templates.
func (s *Store) GetActiveTemplateByType(ctx context.Context, tplType string) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM archway_templates
		WHERE type = $1 AND is_active = true ORDER BY updated_at DESC LIMIT 1`
	return scanTemplate(s.db.QueryRowContext(ctx, query, tplType))
}

// ListTemplates returns all templates, newest first.
func (s *Store) ListTemplates(ctx context.Context) ([]*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM archway_templates ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tpls []*Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		tpls = append(tpls, tpl)
	}
	return tpls, rows.Err()
}

// UpdateTemplate edits template content in place. Identity (ID, type)
// never changes after creation.
func (s *Store) UpdateTemplate(ctx context.Context, tpl *Template) error {
	query := `UPDATE archway_templates SET name = $2, subject_en = $3, subject_ar = $4,
		body_html_en = $5, body_html_ar = $6, body_text_en = $7, body_text_ar = $8,
		is_active = $9, updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, tpl.ID, tpl.Name,
		tpl.Subject.EN, tpl.Subject.AR, tpl.BodyHTML.EN, tpl.BodyHTML.AR,
		tpl.BodyText.EN, tpl.BodyText.AR, tpl.IsActive)
	return err
}
