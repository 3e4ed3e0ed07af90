package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gomail "gopkg.in/gomail.v2"

	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

// ErrDailyLimitReached is returned when the active configuration has
// exhausted its daily send quota. Deliveries stay pending and retry
// after the counter window rolls over.
var ErrDailyLimitReached = errors.New("daily send limit reached")

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	// UnsubscribeURL, when set, is added as a List-Unsubscribe header.
	UnsubscribeURL string
}

// SMTPSender delivers messages through the stored SMTP configuration.
// A Redis counter enforces the per-config daily limit across processes;
// without Redis the limit is advisory only.
type SMTPSender struct {
	store   *Store
	redis   *redis.Client
	timeout time.Duration
}

// NewSMTPSender creates an SMTP sender. redisClient may be nil.
func NewSMTPSender(store *Store, redisClient *redis.Client, timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPSender{store: store, redis: redisClient, timeout: timeout}
}

// Send resolves the active configuration and delivers the message.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	cfg, err := s.store.Current(ctx)
	if err != nil {
		return err
	}
	return s.SendWith(ctx, cfg, msg)
}

// SendWith delivers the message through a specific configuration. Used
// by the test-configuration endpoint as well as the normal path.
func (s *SMTPSender) SendWith(ctx context.Context, cfg *EmailConfiguration, msg *Message) error {
	if err := s.checkDailyLimit(ctx, cfg); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(cfg.FromEmail, cfg.FromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if cfg.ReplyTo != "" {
		m.SetHeader("Reply-To", cfg.ReplyTo)
	}
	if msg.UnsubscribeURL != "" {
		m.SetHeader("List-Unsubscribe", fmt.Sprintf("<%s>", msg.UnsubscribeURL))
	}
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS && cfg.Port == 465

	// gomail has no deadline support, so run the dial+send under our own
	// timeout. A hung SMTP server must not stall the worker pool.
	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send via %s: %w", cfg.Host, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("smtp send via %s: timed out after %s", cfg.Host, s.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPSender) checkDailyLimit(ctx context.Context, cfg *EmailConfiguration) error {
	if cfg.DailyLimit <= 0 || s.redis == nil {
		return nil
	}

	key := fmt.Sprintf("archway:smtp:daily:%s:%s", cfg.ID, time.Now().UTC().Format("2006-01-02"))
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		// Redis being down should not block sending.
		logger.Warn("daily limit check unavailable", "error", err)
		return nil
	}
	if count == 1 {
		s.redis.Expire(ctx, key, 48*time.Hour)
	}
	if count > int64(cfg.DailyLimit) {
		s.redis.Decr(ctx, key)
		return ErrDailyLimitReached
	}
	return nil
}
