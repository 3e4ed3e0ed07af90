package automation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

// Engine enrolls subscribers into automations when lifecycle events
// fire. It satisfies the newsletter package's AutomationTrigger
// interface; step delivery is handled separately by the worker.
type Engine struct {
	store *Store
}

func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// OnSubscribed enrolls the subscriber into subscription and time_delay
// automations. Time-delay sequences are evaluated once, at signup, with
// the automation's own delay pushing the first step out.
func (e *Engine) OnSubscribed(ctx context.Context, subscriberID uuid.UUID) {
	e.fire(ctx, TriggerSubscription, subscriberID, nil)
	e.fire(ctx, TriggerTimeDelay, subscriberID, nil)
}

// OnConfirmed enrolls the subscriber into confirmation automations.
func (e *Engine) OnConfirmed(ctx context.Context, subscriberID uuid.UUID) {
	e.fire(ctx, TriggerConfirmation, subscriberID, nil)
}

// OnSegmentAdded enrolls the subscriber into segment_added automations
// scoped to the segment they just joined.
func (e *Engine) OnSegmentAdded(ctx context.Context, subscriberID, segmentID uuid.UUID) {
	e.fire(ctx, TriggerSegmentAdded, subscriberID, &segmentID)
}

// CancelForSubscriber stops every live execution, typically on
// unsubscribe or deactivation.
func (e *Engine) CancelForSubscriber(ctx context.Context, subscriberID uuid.UUID) {
	n, err := e.store.CancelForSubscriber(ctx, subscriberID)
	if err != nil {
		logger.Error("cancel automation executions", "subscriber_id", subscriberID, "error", err)
		return
	}
	if n > 0 {
		logger.Info("cancelled automation executions", "subscriber_id", subscriberID, "count", n)
	}
}

// fire enrolls one subscriber into every active automation matching the
// event. Errors are logged, never surfaced: automation enrollment must
// not fail the subscription flow that triggered it.
func (e *Engine) fire(ctx context.Context, trigger string, subscriberID uuid.UUID, segmentID *uuid.UUID) {
	automations, err := e.store.matchingAutomations(ctx, trigger, segmentID)
	if err != nil {
		logger.Error("list automations for trigger", "trigger", trigger, "error", err)
		return
	}
	for _, a := range automations {
		if err := e.enroll(ctx, a, subscriberID); err != nil {
			logger.Error("enroll subscriber in automation",
				"automation_id", a.ID, "subscriber_id", subscriberID, "error", err)
		}
	}
}

// enroll creates a pending execution positioned at the automation's
// first active step. An automation with no active steps is skipped.
// The unique execution pair means a subscriber never runs the same
// automation twice, even across unsubscribe/resubscribe cycles.
func (e *Engine) enroll(ctx context.Context, a *Automation, subscriberID uuid.UUID) error {
	exists, err := e.store.ExistsExecution(ctx, a.ID, subscriberID)
	if err != nil || exists {
		return err
	}
	first, err := e.store.FirstActiveStep(ctx, a.ID)
	if err != nil || first == nil {
		return err
	}

	due := stepDue(time.Now().UTC(), a.DelayDays, first.DelayDays)
	exec := &Execution{
		AutomationID:  a.ID,
		SubscriberID:  subscriberID,
		Status:        ExecutionPending,
		CurrentStepID: &first.ID,
		NextStepAt:    &due,
	}
	created, err := e.store.CreateExecution(ctx, exec)
	if err != nil {
		return err
	}
	if created {
		logger.Info("automation execution created",
			"automation_id", a.ID, "subscriber_id", subscriberID,
			"first_step", first.StepOrder, "next_step_at", due.Format(time.RFC3339))
	}
	return nil
}
