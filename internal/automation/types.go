// Package automation implements drip email sequences triggered by
// subscriber lifecycle events. An Automation owns an ordered list of
// steps; each subscriber gets at most one execution per automation.
package automation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Trigger events an automation can react to.
const (
	TriggerSubscription = "subscription"
	TriggerConfirmation = "confirmation"
	TriggerSegmentAdded = "segment_added"
	TriggerTimeDelay    = "time_delay"
)

// Execution statuses.
const (
	ExecutionPending    = "pending"
	ExecutionInProgress = "in_progress"
	ExecutionCompleted  = "completed"
	ExecutionCancelled  = "cancelled"
)

var (
	ErrInvalidTrigger    = errors.New("invalid automation trigger")
	ErrAutomationMissing = errors.New("automation not found")
)

// ValidTrigger reports whether t is a known trigger event.
func ValidTrigger(t string) bool {
	switch t {
	case TriggerSubscription, TriggerConfirmation, TriggerSegmentAdded, TriggerTimeDelay:
		return true
	}
	return false
}

// Automation is a drip sequence definition. SegmentID scopes
// segment_added automations to a single segment; for other triggers it
// is ignored. DelayDays shifts the first step relative to the trigger.
type Automation struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Trigger   string     `json:"trigger"`
	SegmentID *uuid.UUID `json:"segment_id,omitempty"`
	DelayDays int        `json:"delay_days"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Steps []Step `json:"steps,omitempty"`
}

// Step sends one template. Steps are ordered by StepOrder, unique per
// automation. DelayDays is the wait after the previous step (or after
// the trigger, for the first step).
type Step struct {
	ID           uuid.UUID `json:"id"`
	AutomationID uuid.UUID `json:"automation_id"`
	StepOrder    int       `json:"step_order"`
	TemplateID   uuid.UUID `json:"template_id"`
	DelayDays    int       `json:"delay_days"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Execution tracks one subscriber moving through one automation.
// CurrentStepID is the step due to run next; NextStepAt is when.
type Execution struct {
	ID            uuid.UUID  `json:"id"`
	AutomationID  uuid.UUID  `json:"automation_id"`
	SubscriberID  uuid.UUID  `json:"subscriber_id"`
	Status        string     `json:"status"`
	CurrentStepID *uuid.UUID `json:"current_step_id,omitempty"`
	NextStepAt    *time.Time `json:"next_step_at,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the execution reached a terminal status.
func (e *Execution) Done() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionCancelled
}
