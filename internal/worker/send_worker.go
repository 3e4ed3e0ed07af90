package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

const (
	// DefaultSendWorkers is the size of the send pool.
	DefaultSendWorkers = 4

	// DefaultSendBatchSize is how many deliveries one worker claims per
	// poll.
	DefaultSendBatchSize = 50

	// sendPollInterval is how long a worker sleeps when the queue is
	// empty.
	sendPollInterval = 5 * time.Second

	// contentCacheTTL bounds how stale a cached campaign/template pair
	// may get before a worker reloads it, so a template edit mid-campaign
	// reaches later batches.
	contentCacheTTL = 5 * time.Minute

	// contentCacheMax caps the cache so a long-lived worker does not
	// accumulate an entry per campaign ever sent.
	contentCacheMax = 64
)

// SendPoolConfig tunes the SendWorkerPool.
type SendPoolConfig struct {
	Workers      int
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (c *SendPoolConfig) normalize() {
	if c.Workers <= 0 {
		c.Workers = DefaultSendWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultSendBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
}

// campaignContent is the rendered-once-per-campaign part of a send:
// the campaign row and its template.
type campaignContent struct {
	campaign *newsletter.Campaign
	template *newsletter.Template
	loaded   time.Time
}

// SendWorkerPool drains pending deliveries: render the campaign
// template for each subscriber, inject tracking, hand the message to
// the SMTP sender, and record the outcome. Transient failures are
// retried with exponential backoff up to MaxAttempts.
type SendWorkerPool struct {
	store    *newsletter.Store
	renderer *newsletter.Renderer
	tracking *newsletter.TrackingService
	sender   newsletter.EmailSender
	cfg      SendPoolConfig

	contentMu sync.RWMutex
	content   map[uuid.UUID]*campaignContent

	sent   int64
	failed int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewSendWorkerPool(store *newsletter.Store, renderer *newsletter.Renderer,
	tracking *newsletter.TrackingService, sender newsletter.EmailSender, cfg SendPoolConfig) *SendWorkerPool {
	cfg.normalize()
	return &SendWorkerPool{
		store:    store,
		renderer: renderer,
		tracking: tracking,
		sender:   sender,
		cfg:      cfg,
		content:  make(map[uuid.UUID]*campaignContent),
	}
}

func (p *SendWorkerPool) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("send worker pool already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	logger.Info("send worker pool starting", "workers", p.cfg.Workers, "batch_size", p.cfg.BatchSize)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	return nil
}

func (p *SendWorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	logger.Info("send worker pool stopped",
		"sent", atomic.LoadInt64(&p.sent), "failed", atomic.LoadInt64(&p.failed))
}

// Stats returns cumulative sent/failed counts.
func (p *SendWorkerPool) Stats() (sent, failed int64) {
	return atomic.LoadInt64(&p.sent), atomic.LoadInt64(&p.failed)
}

func (p *SendWorkerPool) worker(num int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(p.ctx, 60*time.Second)
		deliveries, err := p.store.ClaimPendingDeliveries(ctx, p.cfg.BatchSize)
		cancel()
		if err != nil {
			if p.ctx.Err() == nil {
				logger.Error("claim pending deliveries", "worker", num, "error", err)
			}
			p.sleep(time.Second)
			continue
		}
		if len(deliveries) == 0 {
			p.sleep(sendPollInterval)
			continue
		}

		for _, d := range deliveries {
			if p.ctx.Err() != nil {
				return
			}
			p.processDelivery(d)
		}
	}
}

func (p *SendWorkerPool) sleep(d time.Duration) {
	select {
	case <-p.ctx.Done():
	case <-time.After(d):
	}
}

func (p *SendWorkerPool) processDelivery(d *newsletter.Delivery) {
	ctx, cancel := context.WithTimeout(p.ctx, 60*time.Second)
	defer cancel()

	content, err := p.campaignContent(ctx, d.CampaignID)
	if err != nil {
		p.retryOrFail(ctx, d, err)
		return
	}

	sub, err := p.store.GetSubscriber(ctx, d.SubscriberID)
	if err != nil {
		p.retryOrFail(ctx, d, err)
		return
	}
	if sub == nil || !sub.IsActive || !sub.Confirmed {
		// audience changed since the snapshot; drop quietly
		if err := p.store.MarkDeliveryUnsubscribed(ctx, d.ID); err != nil {
			logger.Error("mark delivery unsubscribed", "delivery_id", d.ID, "error", err)
		}
		return
	}

	unsubURL := p.tracking.UnsubscribeURL(d.TrackingKey)
	rendered, err := p.renderer.Render(content.template, sub, unsubURL)
	if err != nil {
		// a template that fails to render will fail for every attempt
		p.fail(ctx, d, fmt.Sprintf("render: %v", err))
		return
	}

	msg := &mailer.Message{
		To:             sub.Email,
		Subject:        rendered.Subject,
		HTMLBody:       p.tracking.InjectTracking(rendered.HTMLBody, d.TrackingKey),
		TextBody:       rendered.TextBody,
		UnsubscribeURL: unsubURL,
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, mailer.ErrDailyLimitReached) {
			// not a delivery failure; the claim lease expires and the
			// row comes back once the window resets
			logger.Warn("daily send limit reached, deferring delivery", "delivery_id", d.ID)
			return
		}
		p.retryOrFail(ctx, d, err)
		return
	}

	if err := p.store.MarkDeliverySent(ctx, d.ID); err != nil {
		logger.Error("mark delivery sent", "delivery_id", d.ID, "error", err)
		return
	}
	if err := p.store.IncrementCampaignCounter(ctx, d.CampaignID, "sent_count"); err != nil {
		logger.Error("increment sent count", "campaign_id", d.CampaignID, "error", err)
	}
	atomic.AddInt64(&p.sent, 1)
}

// retryOrFail reschedules a delivery with exponential backoff, or
// fails it permanently once attempts are exhausted.
func (p *SendWorkerPool) retryOrFail(ctx context.Context, d *newsletter.Delivery, sendErr error) {
	attempt := d.Attempts + 1
	if attempt >= p.cfg.MaxAttempts {
		p.fail(ctx, d, sendErr.Error())
		return
	}

	backoff := p.cfg.RetryBackoff * time.Duration(1<<uint(d.Attempts))
	next := time.Now().UTC().Add(backoff)
	if err := p.store.RescheduleDelivery(ctx, d.ID, next, sendErr.Error()); err != nil {
		logger.Error("reschedule delivery", "delivery_id", d.ID, "error", err)
		return
	}
	logger.Warn("delivery rescheduled", "delivery_id", d.ID,
		"attempt", attempt, "backoff", backoff.String(), "error", sendErr)
}

func (p *SendWorkerPool) fail(ctx context.Context, d *newsletter.Delivery, errMsg string) {
	if err := p.store.FailDelivery(ctx, d.ID, errMsg); err != nil {
		logger.Error("fail delivery", "delivery_id", d.ID, "error", err)
		return
	}
	if err := p.store.IncrementCampaignCounter(ctx, d.CampaignID, "bounce_count"); err != nil {
		logger.Error("increment bounce count", "campaign_id", d.CampaignID, "error", err)
	}
	atomic.AddInt64(&p.failed, 1)
	logger.Error("delivery failed permanently", "delivery_id", d.ID,
		"campaign_id", d.CampaignID, "error", errMsg)
}

// campaignContent loads and caches the campaign and template for a
// campaign. Deliveries for the same campaign arrive in runs, so this
// saves two queries per send. Entries expire after contentCacheTTL and
// the cache is capped at contentCacheMax campaigns.
func (p *SendWorkerPool) campaignContent(ctx context.Context, campaignID uuid.UUID) (*campaignContent, error) {
	now := time.Now()
	p.contentMu.RLock()
	c, ok := p.content[campaignID]
	p.contentMu.RUnlock()
	if ok && now.Sub(c.loaded) < contentCacheTTL {
		return c, nil
	}

	campaign, err := p.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, newsletter.ErrCampaignNotFound
	}
	tpl, err := p.store.GetTemplate(ctx, campaign.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, newsletter.ErrTemplateNotFound
	}

	c = &campaignContent{campaign: campaign, template: tpl, loaded: now}
	p.contentMu.Lock()
	if len(p.content) >= contentCacheMax {
		for id, old := range p.content {
			if now.Sub(old.loaded) >= contentCacheTTL {
				delete(p.content, id)
			}
		}
		// every entry still fresh: drop an arbitrary one to stay bounded
		for id := range p.content {
			if len(p.content) < contentCacheMax {
				break
			}
			delete(p.content, id)
		}
	}
	p.content[campaignID] = c
	p.contentMu.Unlock()
	return c, nil
}
