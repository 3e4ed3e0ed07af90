package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
)

func newTestExecutor(t *testing.T) (*StepExecutor, sqlmock.Sqlmock, *fakeSender, func()) {
	t.Helper()
	db, mock, cleanup := setupTestDB(t)
	sender := &fakeSender{}
	se := NewStepExecutor(automation.NewStore(db), newsletter.NewStore(db),
		newsletter.NewRenderer(), sender, "https://example.com", time.Hour)
	return se, mock, sender, cleanup
}

func subscriberMockRows(id uuid.UUID, confirmed, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "first_name", "last_name",
		"language_preference", "confirmed", "is_active", "confirmation_token",
		"subscribed_at", "confirmed_at", "unsubscribed_at", "created_at", "updated_at"}).
		AddRow(id, "reader@example.com", "Omar", "Hassan", "en", confirmed, active,
			"tok", now, nil, nil, now, now)
}

func TestRunStepCancelsForInactiveSubscriber(t *testing.T) {
	se, mock, sender, cleanup := newTestExecutor(t)
	defer cleanup()

	subID := uuid.New()
	stepID := uuid.New()
	exec := &automation.Execution{ID: uuid.New(), AutomationID: uuid.New(),
		SubscriberID: subID, Status: automation.ExecutionInProgress, CurrentStepID: &stepID}

	mock.ExpectQuery(`FROM archway_subscribers`).
		WithArgs(subID).
		WillReturnRows(subscriberMockRows(subID, true, false))
	mock.ExpectExec(`UPDATE archway_automation_executions`).
		WithArgs(exec.ID, automation.ExecutionCancelled,
			automation.ExecutionPending, automation.ExecutionInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := se.runStep(context.Background(), exec); err != nil {
		t.Fatalf("runStep: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sender.sent))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunStepSendsAndCompletesLastStep(t *testing.T) {
	se, mock, sender, cleanup := newTestExecutor(t)
	defer cleanup()

	subID := uuid.New()
	autoID := uuid.New()
	stepID := uuid.New()
	tplID := uuid.New()
	now := time.Now()
	exec := &automation.Execution{ID: uuid.New(), AutomationID: autoID,
		SubscriberID: subID, Status: automation.ExecutionInProgress, CurrentStepID: &stepID}

	mock.ExpectQuery(`FROM archway_subscribers`).
		WithArgs(subID).
		WillReturnRows(subscriberMockRows(subID, true, true))
	mock.ExpectQuery(`FROM archway_automation_steps WHERE id`).
		WithArgs(stepID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order",
			"template_id", "delay_days", "is_active", "created_at"}).
			AddRow(stepID, autoID, 1, tplID, 0, true, now))
	mock.ExpectQuery(`FROM archway_templates`).
		WithArgs(tplID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type",
			"subject_en", "subject_ar", "body_html_en", "body_html_ar",
			"body_text_en", "body_text_ar", "is_active", "created_at", "updated_at"}).
			AddRow(tplID, "welcome", newsletter.TemplateWelcome,
				"Welcome {{ first_name }}", "", "<p>Hi {{ first_name }}</p>", "",
				"Hi {{ first_name }}", "", true, now, now))
	// no step after order 1: the execution completes
	mock.ExpectQuery(`step_order > \$2`).
		WithArgs(autoID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order",
			"template_id", "delay_days", "is_active", "created_at"}))
	mock.ExpectExec(`UPDATE archway_automation_executions`).
		WithArgs(exec.ID, automation.ExecutionCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := se.runStep(context.Background(), exec); err != nil {
		t.Fatalf("runStep: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Subject != "Welcome Omar" {
		t.Errorf("subject = %q, want %q", msg.Subject, "Welcome Omar")
	}
	if msg.To != "reader@example.com" {
		t.Errorf("to = %q", msg.To)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunStepSkipsMissingTemplate(t *testing.T) {
	se, mock, sender, cleanup := newTestExecutor(t)
	defer cleanup()

	subID := uuid.New()
	autoID := uuid.New()
	stepID := uuid.New()
	nextID := uuid.New()
	tplID := uuid.New()
	now := time.Now()
	exec := &automation.Execution{ID: uuid.New(), AutomationID: autoID,
		SubscriberID: subID, Status: automation.ExecutionInProgress, CurrentStepID: &stepID}

	mock.ExpectQuery(`FROM archway_subscribers`).
		WithArgs(subID).
		WillReturnRows(subscriberMockRows(subID, true, true))
	mock.ExpectQuery(`FROM archway_automation_steps WHERE id`).
		WithArgs(stepID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order",
			"template_id", "delay_days", "is_active", "created_at"}).
			AddRow(stepID, autoID, 1, tplID, 0, true, now))
	mock.ExpectQuery(`FROM archway_templates`).
		WithArgs(tplID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type",
			"subject_en", "subject_ar", "body_html_en", "body_html_ar",
			"body_text_en", "body_text_ar", "is_active", "created_at", "updated_at"}))
	// template gone: skip to the next step without sending
	mock.ExpectQuery(`step_order > \$2`).
		WithArgs(autoID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order",
			"template_id", "delay_days", "is_active", "created_at"}).
			AddRow(nextID, autoID, 2, uuid.New(), 2, true, now))
	mock.ExpectExec(`UPDATE archway_automation_executions`).
		WithArgs(exec.ID, nextID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := se.runStep(context.Background(), exec); err != nil {
		t.Fatalf("runStep: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sender.sent))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
