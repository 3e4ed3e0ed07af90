package automation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists automations, steps and executions.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const automationColumns = `id, name, trigger, segment_id, delay_days, is_active, created_at, updated_at`

func scanAutomation(row interface{ Scan(...any) error }) (*Automation, error) {
	var a Automation
	err := row.Scan(&a.ID, &a.Name, &a.Trigger, &a.SegmentID, &a.DelayDays,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAutomation(ctx context.Context, a *Automation) error {
	if !ValidTrigger(a.Trigger) {
		return ErrInvalidTrigger
	}
	a.ID = uuid.New()
	return s.db.QueryRowContext(ctx, `
		INSERT INTO archway_automations (id, name, trigger, segment_id, delay_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.Name, a.Trigger, a.SegmentID, a.DelayDays, a.IsActive,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// GetAutomation returns an automation with its steps, or nil when absent.
func (s *Store) GetAutomation(ctx context.Context, id uuid.UUID) (*Automation, error) {
	a, err := scanAutomation(s.db.QueryRowContext(ctx,
		`SELECT `+automationColumns+` FROM archway_automations WHERE id = $1`, id))
	if err != nil || a == nil {
		return a, err
	}
	a.Steps, err = s.ListSteps(ctx, a.ID)
	return a, err
}

func (s *Store) ListAutomations(ctx context.Context) ([]*Automation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+automationColumns+` FROM archway_automations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAutomation(ctx context.Context, a *Automation) error {
	if !ValidTrigger(a.Trigger) {
		return ErrInvalidTrigger
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE archway_automations
		SET name = $2, trigger = $3, segment_id = $4, delay_days = $5,
		    is_active = $6, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Name, a.Trigger, a.SegmentID, a.DelayDays, a.IsActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAutomationMissing
	}
	return nil
}

func (s *Store) DeleteAutomation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM archway_automations WHERE id = $1`, id)
	return err
}

// matchingAutomations returns active automations for a trigger event.
// For segment_added the segment must match (or the automation must be
// unscoped).
func (s *Store) matchingAutomations(ctx context.Context, trigger string, segmentID *uuid.UUID) ([]*Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM archway_automations
		WHERE is_active = true AND trigger = $1`
	args := []any{trigger}
	if trigger == TriggerSegmentAdded {
		query += ` AND (segment_id IS NULL OR segment_id = $2)`
		args = append(args, segmentID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const stepColumns = `id, automation_id, step_order, template_id, delay_days, is_active, created_at`

func scanStep(row interface{ Scan(...any) error }) (*Step, error) {
	var st Step
	err := row.Scan(&st.ID, &st.AutomationID, &st.StepOrder, &st.TemplateID,
		&st.DelayDays, &st.IsActive, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStep(ctx context.Context, st *Step) error {
	st.ID = uuid.New()
	return s.db.QueryRowContext(ctx, `
		INSERT INTO archway_automation_steps
			(id, automation_id, step_order, template_id, delay_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		st.ID, st.AutomationID, st.StepOrder, st.TemplateID, st.DelayDays, st.IsActive,
	).Scan(&st.CreatedAt)
}

func (s *Store) ListSteps(ctx context.Context, automationID uuid.UUID) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM archway_automation_steps
		 WHERE automation_id = $1 ORDER BY step_order`, automationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *Store) DeleteStep(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM archway_automation_steps WHERE id = $1`, id)
	return err
}

// GetStep returns a single step, nil when absent.
func (s *Store) GetStep(ctx context.Context, id uuid.UUID) (*Step, error) {
	return scanStep(s.db.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM archway_automation_steps WHERE id = $1`, id))
}

// FirstActiveStep returns the lowest-ordered active step, nil when the
// automation has none.
func (s *Store) FirstActiveStep(ctx context.Context, automationID uuid.UUID) (*Step, error) {
	return scanStep(s.db.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM archway_automation_steps
		 WHERE automation_id = $1 AND is_active = true
		 ORDER BY step_order LIMIT 1`, automationID))
}

// NextActiveStep returns the first active step ordered after the given
// step, nil when the sequence is exhausted.
func (s *Store) NextActiveStep(ctx context.Context, automationID uuid.UUID, afterOrder int) (*Step, error) {
	return scanStep(s.db.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM archway_automation_steps
		 WHERE automation_id = $1 AND is_active = true AND step_order > $2
		 ORDER BY step_order LIMIT 1`, automationID, afterOrder))
}

const executionColumns = `id, automation_id, subscriber_id, status, current_step_id, next_step_at, started_at, completed_at`

func scanExecution(row interface{ Scan(...any) error }) (*Execution, error) {
	var e Execution
	err := row.Scan(&e.ID, &e.AutomationID, &e.SubscriberID, &e.Status,
		&e.CurrentStepID, &e.NextStepAt, &e.StartedAt, &e.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExecution enrolls a subscriber in an automation. The unique
// (automation_id, subscriber_id) pair makes re-enrollment a no-op;
// the bool reports whether a new execution was created.
func (s *Store) CreateExecution(ctx context.Context, e *Execution) (bool, error) {
	e.ID = uuid.New()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO archway_automation_executions
			(id, automation_id, subscriber_id, status, current_step_id, next_step_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (automation_id, subscriber_id) DO NOTHING`,
		e.ID, e.AutomationID, e.SubscriberID, e.Status, e.CurrentStepID, e.NextStepAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExistsExecution reports whether the subscriber is already enrolled.
func (s *Store) ExistsExecution(ctx context.Context, automationID, subscriberID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM archway_automation_executions
			WHERE automation_id = $1 AND subscriber_id = $2
		)`, automationID, subscriberID).Scan(&exists)
	return exists, err
}

func (s *Store) GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error) {
	return scanExecution(s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM archway_automation_executions WHERE id = $1`, id))
}

func (s *Store) ListExecutions(ctx context.Context, automationID uuid.UUID) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM archway_automation_executions
		 WHERE automation_id = $1 ORDER BY started_at DESC`, automationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClaimDueExecutions locks and returns pending or in-progress
// executions whose next step is due. Claimed rows get their
// next_step_at pushed forward so a crashed worker releases them after
// the lease expires.
func (s *Store) ClaimDueExecutions(ctx context.Context, limit int) ([]*Execution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM archway_automation_executions
		WHERE status IN ($1, $2) AND next_step_at IS NOT NULL AND next_step_at <= NOW()
		ORDER BY next_step_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		ExecutionPending, ExecutionInProgress, limit)
	if err != nil {
		return nil, err
	}

	var claimed []*Execution
	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE archway_automation_executions
			SET status = $1, next_step_at = NOW() + INTERVAL '5 minutes'
			WHERE id = ANY($2)`,
			ExecutionInProgress, pq.Array(ids))
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, e := range claimed {
		e.Status = ExecutionInProgress
	}
	return claimed, nil
}

// AdvanceExecution points an execution at its next step.
func (s *Store) AdvanceExecution(ctx context.Context, id, nextStepID uuid.UUID, nextAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE archway_automation_executions
		SET current_step_id = $2, next_step_at = $3
		WHERE id = $1`,
		id, nextStepID, nextAt)
	return err
}

// CompleteExecution marks an execution finished after its last step.
func (s *Store) CompleteExecution(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE archway_automation_executions
		SET status = $2, current_step_id = NULL, next_step_at = NULL, completed_at = NOW()
		WHERE id = $1`,
		id, ExecutionCompleted)
	return err
}

// CancelExecution cancels a single execution unless already terminal.
func (s *Store) CancelExecution(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE archway_automation_executions
		SET status = $2, next_step_at = NULL, completed_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, ExecutionCancelled, ExecutionPending, ExecutionInProgress)
	return err
}

// CancelForSubscriber cancels every live execution for a subscriber,
// returning the number cancelled. Called on unsubscribe.
func (s *Store) CancelForSubscriber(ctx context.Context, subscriberID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE archway_automation_executions
		SET status = $2, next_step_at = NULL, completed_at = NOW()
		WHERE subscriber_id = $1 AND status IN ($3, $4)`,
		subscriberID, ExecutionCancelled, ExecutionPending, ExecutionInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func delayFrom(now time.Time, days int) time.Time {
	if days <= 0 {
		return now
	}
	return now.Add(time.Duration(days) * 24 * time.Hour)
}

// stepDue computes when a step should run, combining the automation
// level delay (first step only) with the step's own delay.
func stepDue(now time.Time, automationDelay, stepDelay int) time.Time {
	return delayFrom(delayFrom(now, automationDelay), stepDelay)
}
