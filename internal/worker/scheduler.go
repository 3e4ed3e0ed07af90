// Package worker holds the background loops that move campaigns and
// automations through their lifecycles: the campaign scheduler, the
// send worker pool, and the automation step executor.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ibrahimamir22/archway/internal/newsletter"
	"github.com/Ibrahimamir22/archway/internal/pkg/distlock"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

const (
	// DefaultSchedulerInterval is how often the scheduler polls for due
	// campaigns and sweeps sending campaigns for completion.
	DefaultSchedulerInterval = 15 * time.Second

	// campaignLockTTL bounds how long a crashed scheduler can hold a
	// campaign before another instance may pick it up.
	campaignLockTTL = 10 * time.Minute
)

// CampaignScheduler polls for scheduled campaigns whose send time has
// arrived, snapshots their audience into delivery rows, and marks
// sending campaigns as sent once their queue drains.
type CampaignScheduler struct {
	db          *sql.DB
	store       *newsletter.Store
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	workerID    string
	interval    time.Duration

	campaignsStarted   int64
	deliveriesEnqueued int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewCampaignScheduler(store *newsletter.Store, interval time.Duration) *CampaignScheduler {
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	return &CampaignScheduler{
		db:       store.DB(),
		store:    store,
		workerID: fmt.Sprintf("scheduler-%s-%d", hostname(), time.Now().UnixNano()%10000),
		interval: interval,
	}
}

// SetRedisClient enables Redis-based distributed locking. Without it
// the scheduler uses PostgreSQL advisory locks.
func (cs *CampaignScheduler) SetRedisClient(client *redis.Client) {
	cs.redisClient = client
}

func (cs *CampaignScheduler) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return fmt.Errorf("campaign scheduler already running")
	}
	cs.running = true
	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.mu.Unlock()

	logger.Info("campaign scheduler starting", "worker_id", cs.workerID, "interval", cs.interval.String())

	cs.wg.Add(1)
	go cs.loop()
	return nil
}

func (cs *CampaignScheduler) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	cs.mu.Unlock()

	cs.cancel()
	cs.wg.Wait()
	logger.Info("campaign scheduler stopped",
		"campaigns_started", atomic.LoadInt64(&cs.campaignsStarted),
		"deliveries_enqueued", atomic.LoadInt64(&cs.deliveriesEnqueued))
}

func (cs *CampaignScheduler) loop() {
	defer cs.wg.Done()

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			cs.processDueCampaigns()
			cs.sweepSendingCampaigns()
		}
	}
}

// processDueCampaigns claims due campaigns and snapshots their
// audience into delivery rows.
func (cs *CampaignScheduler) processDueCampaigns() {
	ctx, cancel := context.WithTimeout(cs.ctx, 60*time.Second)
	defer cancel()

	due, err := cs.store.GetDueCampaigns(ctx, 10)
	if err != nil {
		logger.Error("fetch due campaigns", "error", err)
		return
	}
	for _, c := range due {
		cs.startCampaign(ctx, c)
	}
}

// startCampaign moves one campaign to sending and enqueues its
// deliveries. The distributed lock plus the conditional status update
// make this safe to run from multiple scheduler instances.
func (cs *CampaignScheduler) startCampaign(ctx context.Context, c *newsletter.Campaign) {
	lock := distlock.NewLock(cs.redisClient, cs.db, fmt.Sprintf("campaign:%s", c.ID), campaignLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("acquire campaign lock", "campaign_id", c.ID, "error", err)
		return
	}
	if !acquired {
		return
	}
	defer lock.Release(ctx)

	claimed, err := cs.store.ClaimCampaignForSending(ctx, c.ID)
	if err != nil {
		logger.Error("claim campaign", "campaign_id", c.ID, "error", err)
		return
	}
	if !claimed {
		// cancelled or picked up between the poll and the claim
		return
	}

	recipients, err := cs.store.ResolveRecipients(ctx, c.ID)
	if err != nil {
		logger.Error("resolve campaign recipients", "campaign_id", c.ID, "error", err)
		cs.failCampaign(ctx, c.ID, "failed to resolve recipients")
		return
	}

	if err := cs.store.SetCampaignRecipients(ctx, c.ID, len(recipients)); err != nil {
		logger.Error("set campaign recipients", "campaign_id", c.ID, "error", err)
	}

	if len(recipients) == 0 {
		logger.Warn("campaign has no recipients", "campaign_id", c.ID, "name", c.Name)
		if err := cs.store.MarkCampaignSent(ctx, c.ID); err != nil {
			logger.Error("mark empty campaign sent", "campaign_id", c.ID, "error", err)
		}
		return
	}

	ids := make([]uuid.UUID, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}
	created, err := cs.store.EnqueueDeliveries(ctx, c.ID, ids)
	if err != nil {
		logger.Error("enqueue campaign deliveries", "campaign_id", c.ID, "error", err)
		cs.failCampaign(ctx, c.ID, "failed to enqueue deliveries")
		return
	}

	atomic.AddInt64(&cs.campaignsStarted, 1)
	atomic.AddInt64(&cs.deliveriesEnqueued, int64(created))
	logger.Info("campaign sending started", "campaign_id", c.ID, "name", c.Name,
		"recipients", len(recipients), "enqueued", created)
}

func (cs *CampaignScheduler) failCampaign(ctx context.Context, id uuid.UUID, reason string) {
	if err := cs.store.MarkCampaignFailed(ctx, id); err != nil {
		logger.Error("mark campaign failed", "campaign_id", id, "reason", reason, "error", err)
	}
}

// sweepSendingCampaigns marks sending campaigns as sent once no
// pending deliveries remain.
func (cs *CampaignScheduler) sweepSendingCampaigns() {
	ctx, cancel := context.WithTimeout(cs.ctx, 30*time.Second)
	defer cancel()

	ids, err := cs.store.GetSendingCampaignIDs(ctx)
	if err != nil {
		logger.Error("list sending campaigns", "error", err)
		return
	}
	for _, id := range ids {
		pending, err := cs.store.CountPendingDeliveries(ctx, id)
		if err != nil {
			logger.Error("count pending deliveries", "campaign_id", id, "error", err)
			continue
		}
		if pending > 0 {
			continue
		}
		if err := cs.store.MarkCampaignSent(ctx, id); err != nil {
			logger.Error("mark campaign sent", "campaign_id", id, "error", err)
			continue
		}
		logger.Info("campaign completed", "campaign_id", id)
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
