package newsletter

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Ibrahimamir22/archway/internal/i18n"
	"github.com/Ibrahimamir22/archway/internal/mailer"
	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

// EmailSender is the outbound transport used for confirmation emails.
type EmailSender interface {
	Send(ctx context.Context, msg *mailer.Message) error
}

// AutomationTrigger receives subscriber lifecycle events so drip
// sequences can start (or stop) in response.
type AutomationTrigger interface {
	OnSubscribed(ctx context.Context, subscriberID uuid.UUID)
	OnConfirmed(ctx context.Context, subscriberID uuid.UUID)
	OnSegmentAdded(ctx context.Context, subscriberID, segmentID uuid.UUID)
	CancelForSubscriber(ctx context.Context, subscriberID uuid.UUID)
}

// Service implements the subscription lifecycle: double opt-in with
// token rotation, soft unsubscribe, and segment membership.
type Service struct {
	store       *Store
	sender      EmailSender
	renderer    *Renderer
	baseURL     string
	automations AutomationTrigger
}

// NewService creates the subscription service. sender may be nil in
// tests; automations is optional and attached via SetAutomationTrigger.
func NewService(store *Store, sender EmailSender, renderer *Renderer, baseURL string) *Service {
	return &Service{store: store, sender: sender, renderer: renderer, baseURL: baseURL}
}

// SetAutomationTrigger wires the automation engine in after construction
// (the engine and the service are built independently at startup).
func (s *Service) SetAutomationTrigger(t AutomationTrigger) { s.automations = t }

// Subscribe handles a signup request. Existing unconfirmed or
// unsubscribed rows are reused with a fresh confirmation token; an
// already confirmed active subscriber is rejected.
func (s *Service) Subscribe(ctx context.Context, email, firstName, lastName, lang string) (*Subscriber, error) {
	if !ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	lang = i18n.NormalizeLang(lang)

	existing, err := s.store.GetSubscriberByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("looking up subscriber: %w", err)
	}

	var sub *Subscriber
	switch {
	case existing == nil:
		sub = &Subscriber{
			Email:              email,
			FirstName:          firstName,
			LastName:           lastName,
			LanguagePreference: lang,
		}
		if err := s.store.CreateSubscriber(ctx, sub); err != nil {
			return nil, fmt.Errorf("creating subscriber: %w", err)
		}

	case existing.Confirmed && existing.IsActive:
		return nil, ErrAlreadySubscribed

	default:
		// Unconfirmed signup or a previous unsubscribe: restart the
		// opt-in. The old token stops working the moment the new one
		// is issued.
		token := NewConfirmationToken()
		if err := s.store.ReissueToken(ctx, existing.ID, token, firstName, lastName, lang); err != nil {
			return nil, fmt.Errorf("reissuing token: %w", err)
		}
		existing.ConfirmationToken = token
		existing.FirstName = firstName
		existing.LastName = lastName
		existing.LanguagePreference = lang
		existing.Confirmed = false
		existing.IsActive = true
		sub = existing
	}

	if err := s.sendConfirmationEmail(ctx, sub); err != nil {
		// The row exists and the token is valid; the subscriber can
		// request a resend by subscribing again.
		logger.Error("confirmation email failed", "email", sub.Email, "error", err)
	}

	if s.automations != nil {
		s.automations.OnSubscribed(ctx, sub.ID)
	}
	return sub, nil
}

// Confirm completes the double opt-in for a token. A token is single
// use: once the row is confirmed, the same token no longer matches.
func (s *Service) Confirm(ctx context.Context, token string) (*Subscriber, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	sub, err := s.store.ConfirmByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("confirming token: %w", err)
	}
	if sub == nil {
		return nil, ErrInvalidToken
	}

	logger.Info("subscriber confirmed", "email", sub.Email)
	if s.automations != nil {
		s.automations.OnConfirmed(ctx, sub.ID)
	}
	return sub, nil
}

// Unsubscribe soft-deletes an active subscriber and cancels any running
// drip sequences. Re-subscribing later restarts the opt-in.
func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	sub, err := s.store.DeactivateSubscriber(ctx, email)
	if err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	if sub == nil {
		return ErrNotSubscribed
	}

	logger.Info("subscriber unsubscribed", "email", sub.Email)
	if s.automations != nil {
		s.automations.CancelForSubscriber(ctx, sub.ID)
	}
	return nil
}

// UnsubscribeByTrackingKey is the one-click variant embedded in emails.
func (s *Service) UnsubscribeByTrackingKey(ctx context.Context, key string) error {
	delivery, err := s.store.GetDeliveryByTrackingKey(ctx, key)
	if err != nil {
		return err
	}
	if delivery == nil {
		return ErrNotSubscribed
	}
	if err := s.store.MarkDeliveryUnsubscribed(ctx, delivery.ID); err != nil {
		return err
	}
	if err := s.store.DeactivateSubscriberByID(ctx, delivery.SubscriberID); err != nil {
		return err
	}
	if s.automations != nil {
		s.automations.CancelForSubscriber(ctx, delivery.SubscriberID)
	}
	return nil
}

// AddToSegment puts a subscriber into a segment and fires segment-scoped
// automations on first addition only.
func (s *Service) AddToSegment(ctx context.Context, segmentID, subscriberID uuid.UUID) error {
	added, err := s.store.AddSegmentMember(ctx, segmentID, subscriberID)
	if err != nil {
		return fmt.Errorf("adding segment member: %w", err)
	}
	if added && s.automations != nil {
		s.automations.OnSegmentAdded(ctx, subscriberID, segmentID)
	}
	return nil
}

// ConfirmationURL builds the opt-in link for a token.
func (s *Service) ConfirmationURL(token string) string {
	return fmt.Sprintf("%s/api/v1/newsletter/confirm/%s", s.baseURL, token)
}

// BaseURL returns the public site base, the fallback target for click
// redirects with no usable destination.
func (s *Service) BaseURL() string { return s.baseURL }

func (s *Service) sendConfirmationEmail(ctx context.Context, sub *Subscriber) error {
	if s.sender == nil {
		return nil
	}
	confirmURL := s.ConfirmationURL(sub.ConfirmationToken)

	tpl, err := s.store.GetActiveTemplateByType(ctx, TemplateConfirmation)
	if err != nil {
		return err
	}
	if tpl == nil {
		tpl = fallbackConfirmationTemplate()
	}

	bindings := map[string]interface{}{
		"email":            sub.Email,
		"first_name":       sub.FirstName,
		"last_name":        sub.LastName,
		"name":             sub.FullName(),
		"confirmation_url": confirmURL,
	}
	lang := i18n.NormalizeLang(sub.LanguagePreference)

	subject, err := s.renderer.RenderString(tpl.Subject.Resolve(lang), bindings)
	if err != nil {
		return fmt.Errorf("rendering confirmation subject: %w", err)
	}
	htmlBody, err := s.renderer.RenderString(tpl.BodyHTML.Resolve(lang), bindings)
	if err != nil {
		return fmt.Errorf("rendering confirmation body: %w", err)
	}
	textBody, err := s.renderer.RenderString(tpl.BodyText.Resolve(lang), bindings)
	if err != nil {
		return fmt.Errorf("rendering confirmation text: %w", err)
	}

	return s.sender.Send(ctx, &mailer.Message{
		To:       sub.Email,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// fallbackConfirmationTemplate is used when no confirmation template has
// been configured yet, so double opt-in works on a fresh install.
func fallbackConfirmationTemplate() *Template {
	return &Template{
		Type: TemplateConfirmation,
		Subject: i18n.LocalizedText{
			EN: "Please confirm your subscription",
			AR: "يرجى تأكيد اشتراكك",
		},
		BodyHTML: i18n.LocalizedText{
			EN: `<html><body><p>Hi {{ name | default: "there" }},</p>` +
				`<p>Please confirm your subscription to the Archway newsletter:</p>` +
				`<p><a href="{{ confirmation_url }}">Confirm subscription</a></p></body></html>`,
			AR: `<html dir="rtl"><body><p>مرحبا {{ name }},</p>` +
				`<p>يرجى تأكيد اشتراكك في نشرة أركواي الإخبارية:</p>` +
				`<p><a href="{{ confirmation_url }}">تأكيد الاشتراك</a></p></body></html>`,
		},
		BodyText: i18n.LocalizedText{
			EN: "Please confirm your subscription: {{ confirmation_url }}",
			AR: "يرجى تأكيد اشتراكك: {{ confirmation_url }}",
		},
	}
}
