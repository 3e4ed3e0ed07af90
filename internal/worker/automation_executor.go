package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ibrahimamir22/archway/internal/automation"
	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

const (
	// DefaultExecutorInterval is how often the executor polls for due
	// automation steps.
	DefaultExecutorInterval = 30 * time.Second

	executorBatchSize = 25
)

// StepExecutor advances automation executions: when a step comes due
// it sends the step's template to the subscriber and moves the
// execution to the next active step, completing it after the last one.
type StepExecutor struct {
	autoStore *automation.Store
	nlStore   *newsletter.Store
	renderer  *newsletter.Renderer
	sender    newsletter.EmailSender
	baseURL   string
	interval  time.Duration

	stepsSent int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewStepExecutor(autoStore *automation.Store, nlStore *newsletter.Store,
	renderer *newsletter.Renderer, sender newsletter.EmailSender,
	baseURL string, interval time.Duration) *StepExecutor {
	if interval <= 0 {
		interval = DefaultExecutorInterval
	}
	return &StepExecutor{
		autoStore: autoStore,
		nlStore:   nlStore,
		renderer:  renderer,
		sender:    sender,
		baseURL:   strings.TrimRight(baseURL, "/"),
		interval:  interval,
	}
}

func (se *StepExecutor) Start() error {
	se.mu.Lock()
	if se.running {
		se.mu.Unlock()
		return fmt.Errorf("step executor already running")
	}
	se.running = true
	se.ctx, se.cancel = context.WithCancel(context.Background())
	se.mu.Unlock()

	logger.Info("automation step executor starting", "interval", se.interval.String())
	se.wg.Add(1)
	go se.loop()
	return nil
}

func (se *StepExecutor) Stop() {
	se.mu.Lock()
	if !se.running {
		se.mu.Unlock()
		return
	}
	se.running = false
	se.mu.Unlock()

	se.cancel()
	se.wg.Wait()
	logger.Info("automation step executor stopped", "steps_sent", atomic.LoadInt64(&se.stepsSent))
}

func (se *StepExecutor) loop() {
	defer se.wg.Done()

	ticker := time.NewTicker(se.interval)
	defer ticker.Stop()

	for {
		select {
		case <-se.ctx.Done():
			return
		case <-ticker.C:
			se.processDue()
		}
	}
}

func (se *StepExecutor) processDue() {
	ctx, cancel := context.WithTimeout(se.ctx, 60*time.Second)
	defer cancel()

	execs, err := se.autoStore.ClaimDueExecutions(ctx, executorBatchSize)
	if err != nil {
		logger.Error("claim due automation executions", "error", err)
		return
	}
	for _, e := range execs {
		if err := se.runStep(ctx, e); err != nil {
			// left in_progress; the claim lease brings it back
			logger.Error("run automation step", "execution_id", e.ID, "error", err)
		}
	}
}

// runStep sends the current step's email and advances the execution.
func (se *StepExecutor) runStep(ctx context.Context, e *automation.Execution) error {
	sub, err := se.nlStore.GetSubscriber(ctx, e.SubscriberID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.IsActive || !sub.Confirmed {
		// unsubscribed or never confirmed; the sequence stops here
		return se.autoStore.CancelExecution(ctx, e.ID)
	}

	if e.CurrentStepID == nil {
		return se.autoStore.CompleteExecution(ctx, e.ID)
	}
	step, err := se.autoStore.GetStep(ctx, *e.CurrentStepID)
	if err != nil {
		return err
	}
	if step == nil || !step.IsActive {
		// step deleted or disabled mid-flight; skip to the next one
		return se.advance(ctx, e, step)
	}

	tpl, err := se.nlStore.GetTemplate(ctx, step.TemplateID)
	if err != nil {
		return err
	}
	if tpl == nil || !tpl.IsActive {
		logger.Warn("automation step template unavailable, skipping step",
			"execution_id", e.ID, "step_id", step.ID, "template_id", step.TemplateID)
		return se.advance(ctx, e, step)
	}

	unsubURL := fmt.Sprintf("%s/api/v1/newsletter/unsubscribe?email=%s",
		se.baseURL, url.QueryEscape(sub.Email))
	rendered, err := se.renderer.Render(tpl, sub, unsubURL)
	if err != nil {
		logger.Error("render automation step", "execution_id", e.ID,
			"template_id", tpl.ID, "error", err)
		return se.advance(ctx, e, step)
	}

	// automation mail carries no per-delivery tracking key, so links
	// and opens are not tracked here
	msg := &mailer.Message{
		To:             sub.Email,
		Subject:        rendered.Subject,
		HTMLBody:       rendered.HTMLBody,
		TextBody:       rendered.TextBody,
		UnsubscribeURL: unsubURL,
	}
	if err := se.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, mailer.ErrDailyLimitReached) {
			logger.Warn("daily send limit reached, deferring automation step", "execution_id", e.ID)
			return nil
		}
		return err
	}

	atomic.AddInt64(&se.stepsSent, 1)
	return se.advance(ctx, e, step)
}

// advance moves the execution to the next active step, or completes it
// when the sequence is exhausted. A nil step means the current step row
// disappeared, in which case the execution completes.
func (se *StepExecutor) advance(ctx context.Context, e *automation.Execution, step *automation.Step) error {
	if step == nil {
		return se.autoStore.CompleteExecution(ctx, e.ID)
	}
	next, err := se.autoStore.NextActiveStep(ctx, e.AutomationID, step.StepOrder)
	if err != nil {
		return err
	}
	if next == nil {
		return se.autoStore.CompleteExecution(ctx, e.ID)
	}

	due := time.Now().UTC()
	if next.DelayDays > 0 {
		due = due.Add(time.Duration(next.DelayDays) * 24 * time.Hour)
	}
	return se.autoStore.AdvanceExecution(ctx, e.ID, next.ID, due)
}
