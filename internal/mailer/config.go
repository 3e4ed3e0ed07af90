// Package mailer owns outbound SMTP: the stored server configurations
// (at most one active at a time) and the transport that campaign and
// automation sends go through.
package mailer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoActiveConfig is returned when no SMTP configuration is active.
var ErrNoActiveConfig = errors.New("no active email configuration")

// EmailConfiguration holds the SMTP parameters for one mail account.
type EmailConfiguration struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Host       string    `json:"host" db:"host"`
	Port       int       `json:"port" db:"port"`
	Username   string    `json:"username" db:"username"`
	Password   string    `json:"-" db:"password"`
	UseTLS     bool      `json:"use_tls" db:"use_tls"`
	FromName   string    `json:"from_name" db:"from_name"`
	FromEmail  string    `json:"from_email" db:"from_email"`
	ReplyTo    string    `json:"reply_to" db:"reply_to"`
	DailyLimit int       `json:"daily_limit" db:"daily_limit"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Store provides database operations for email configurations.
type Store struct {
	db *sql.DB
}

// NewStore creates a new mailer store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const configColumns = `id, name, host, port, username, password, use_tls,
	from_name, from_email, reply_to, daily_limit, active, created_at, updated_at`

func scanConfig(row interface{ Scan(...any) error }) (*EmailConfiguration, error) {
	c := &EmailConfiguration{}
	err := row.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.Username, &c.Password, &c.UseTLS,
		&c.FromName, &c.FromEmail, &c.ReplyTo, &c.DailyLimit, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new configuration. New configurations start inactive;
// use Activate to make one live.
func (s *Store) Create(ctx context.Context, c *EmailConfiguration) error {
	c.ID = uuid.New()
	c.Active = false
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	if c.Port == 0 {
		c.Port = 587
	}

	query := `INSERT INTO archway_email_configurations
		(id, name, host, port, username, password, use_tls, from_name, from_email,
		 reply_to, daily_limit, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Host, c.Port, c.Username,
		c.Password, c.UseTLS, c.FromName, c.FromEmail, c.ReplyTo, c.DailyLimit,
		c.Active, c.CreatedAt, c.UpdatedAt)
	return err
}

// Get retrieves a configuration by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*EmailConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM archway_email_configurations WHERE id = $1`
	return scanConfig(s.db.QueryRowContext(ctx, query, id))
}

// List returns all configurations, active first.
func (s *Store) List(ctx context.Context) ([]*EmailConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM archway_email_configurations
		ORDER BY active DESC, created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*EmailConfiguration
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Update edits connection parameters. The active flag is only changed
// through Activate, never here.
func (s *Store) Update(ctx context.Context, c *EmailConfiguration) error {
	query := `UPDATE archway_email_configurations
		SET name = $2, host = $3, port = $4, username = $5, password = $6, use_tls = $7,
		    from_name = $8, from_email = $9, reply_to = $10, daily_limit = $11, updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Host, c.Port, c.Username,
		c.Password, c.UseTLS, c.FromName, c.FromEmail, c.ReplyTo, c.DailyLimit)
	return err
}

// Activate makes one configuration active, deactivating every other row
// inside a single transaction. Combined with the partial unique index on
// (active) WHERE active, two concurrent activations serialize instead of
// leaving two live configs.
func (s *Store) Activate(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE archway_email_configurations SET active = false, updated_at = NOW() WHERE active = true`); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE archway_email_configurations SET active = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// Delete removes an inactive configuration.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM archway_email_configurations WHERE id = $1 AND active = false`, id)
	return err
}

// Current resolves the active configuration. Every send path calls this
// instead of caching, so an operator swap takes effect immediately.
func (s *Store) Current(ctx context.Context) (*EmailConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM archway_email_configurations WHERE active = true`
	c, err := scanConfig(s.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNoActiveConfig
	}
	return c, nil
}
