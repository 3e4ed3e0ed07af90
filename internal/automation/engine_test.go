package automation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func automationRow(a *Automation) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "trigger", "segment_id",
		"delay_days", "is_active", "created_at", "updated_at"}).
		AddRow(a.ID, a.Name, a.Trigger, a.SegmentID, a.DelayDays,
			a.IsActive, a.CreatedAt, a.UpdatedAt)
}

func stepRow(st *Step) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "automation_id", "step_order",
		"template_id", "delay_days", "is_active", "created_at"}).
		AddRow(st.ID, st.AutomationID, st.StepOrder, st.TemplateID,
			st.DelayDays, st.IsActive, st.CreatedAt)
}

func TestValidTrigger(t *testing.T) {
	for _, tr := range []string{TriggerSubscription, TriggerConfirmation, TriggerSegmentAdded, TriggerTimeDelay} {
		if !ValidTrigger(tr) {
			t.Errorf("ValidTrigger(%q) = false, want true", tr)
		}
	}
	if ValidTrigger("open") {
		t.Error("ValidTrigger(\"open\") = true, want false")
	}
	if ValidTrigger("") {
		t.Error("ValidTrigger(\"\") = true, want false")
	}
}

func TestCreateAutomationRejectsUnknownTrigger(t *testing.T) {
	s := NewStore(nil)
	err := s.CreateAutomation(context.Background(), &Automation{Name: "bad", Trigger: "nonsense"})
	if err != ErrInvalidTrigger {
		t.Errorf("CreateAutomation error = %v, want ErrInvalidTrigger", err)
	}
}

func TestStepDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		automationDelay int
		stepDelay       int
		want            time.Time
	}{
		{"immediate", 0, 0, now},
		{"automation delay only", 2, 0, now.Add(48 * time.Hour)},
		{"step delay only", 0, 1, now.Add(24 * time.Hour)},
		{"both delays stack", 1, 3, now.Add(96 * time.Hour)},
		{"negative treated as zero", -1, 0, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stepDue(now, tt.automationDelay, tt.stepDelay); !got.Equal(tt.want) {
				t.Errorf("stepDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnrollCreatesPendingExecution(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	auto := &Automation{ID: uuid.New(), Name: "welcome series",
		Trigger: TriggerSubscription, DelayDays: 0, IsActive: true}
	step := &Step{ID: uuid.New(), AutomationID: auto.ID, StepOrder: 1,
		TemplateID: uuid.New(), DelayDays: 0, IsActive: true}
	subID := uuid.New()

	mock.ExpectQuery(`SELECT id, name, trigger`).
		WithArgs(TriggerSubscription).
		WillReturnRows(automationRow(auto))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(auto.ID, subID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT id, automation_id, step_order`).
		WithArgs(auto.ID).
		WillReturnRows(stepRow(step))
	mock.ExpectExec(`INSERT INTO archway_automation_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	engine := NewEngine(NewStore(db))
	engine.fire(context.Background(), TriggerSubscription, subID, nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnrollSkipsExistingExecution(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	auto := &Automation{ID: uuid.New(), Name: "welcome series",
		Trigger: TriggerConfirmation, IsActive: true}
	subID := uuid.New()

	mock.ExpectQuery(`SELECT id, name, trigger`).
		WithArgs(TriggerConfirmation).
		WillReturnRows(automationRow(auto))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(auto.ID, subID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	engine := NewEngine(NewStore(db))
	engine.OnConfirmed(context.Background(), subID)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnrollSkipsAutomationWithoutSteps(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	auto := &Automation{ID: uuid.New(), Name: "empty",
		Trigger: TriggerSubscription, IsActive: true}
	subID := uuid.New()

	mock.ExpectQuery(`SELECT id, name, trigger`).
		WithArgs(TriggerSubscription).
		WillReturnRows(automationRow(auto))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(auto.ID, subID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT id, automation_id, step_order`).
		WithArgs(auto.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order",
			"template_id", "delay_days", "is_active", "created_at"}))

	engine := NewEngine(NewStore(db))
	engine.fire(context.Background(), TriggerSubscription, subID, nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCancelForSubscriber(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	subID := uuid.New()
	mock.ExpectExec(`UPDATE archway_automation_executions`).
		WithArgs(subID, ExecutionCancelled, ExecutionPending, ExecutionInProgress).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewStore(db).CancelForSubscriber(context.Background(), subID)
	if err != nil {
		t.Fatalf("CancelForSubscriber: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled = %d, want 2", n)
	}
}

func TestClaimDueExecutions(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	execID := uuid.New()
	stepID := uuid.New()
	due := time.Now().Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(ExecutionPending, ExecutionInProgress, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "subscriber_id",
			"status", "current_step_id", "next_step_at", "started_at", "completed_at"}).
			AddRow(execID, uuid.New(), uuid.New(), ExecutionPending, stepID, due, time.Now(), nil))
	mock.ExpectExec(`UPDATE archway_automation_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := NewStore(db).ClaimDueExecutions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ClaimDueExecutions: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d executions, want 1", len(claimed))
	}
	if claimed[0].Status != ExecutionInProgress {
		t.Errorf("status = %q, want %q", claimed[0].Status, ExecutionInProgress)
	}
	if claimed[0].CurrentStepID == nil || *claimed[0].CurrentStepID != stepID {
		t.Errorf("current step = %v, want %v", claimed[0].CurrentStepID, stepID)
	}
}

func TestClaimDueExecutionsNoneDue(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(ExecutionPending, ExecutionInProgress, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "subscriber_id",
			"status", "current_step_id", "next_step_at", "started_at", "completed_at"}))
	mock.ExpectCommit()

	claimed, err := NewStore(db).ClaimDueExecutions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ClaimDueExecutions: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed %d executions, want 0", len(claimed))
	}
}
