package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/planskit/pkg/logger"
	"github.com/dmitrymomot/planskit/pkg/webhook"
)

// WebhookEnvelope is the JSON body posted for every lifecycle event.
type WebhookEnvelope struct {
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	SubscriberType string    `json:"subscriber_type"`
	SubscriberID   string    `json:"subscriber_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Error          string    `json:"error,omitempty"`
	Data           Event     `json:"data"`
}

// NewWebhookEnvelope wraps event for delivery.
func NewWebhookEnvelope(event Event) WebhookEnvelope {
	owner := event.Subscriber()
	env := WebhookEnvelope{
		Type:           event.EventName(),
		SubscriberType: owner.Type,
		SubscriberID:   owner.ID,
		SubscriptionID: event.SubscriptionID(),
		Data:           event,
	}
	if o, ok := event.(interface{ Occurred() time.Time }); ok {
		env.OccurredAt = o.Occurred()
	}
	if cf, ok := event.(ChargeFailed); ok && cf.Err != nil {
		env.Error = cf.Err.Error()
	}
	return env
}

// WebhookSink posts lifecycle events to a single HTTP endpoint.
//
// Publish delivers synchronously, so retries hold up the operation that raised
// the event. To keep lifecycle calls fast, publish to an EventHub and drain a
// listener with Forward instead.
type WebhookSink struct {
	sender *webhook.Sender
	url    string
	log    *slog.Logger
}

// NewWebhookSink creates a sink delivering to url. Sender must not be nil.
func NewWebhookSink(sender *webhook.Sender, url string, log *slog.Logger) *WebhookSink {
	if sender == nil {
		panic("subscription: webhook sender is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &WebhookSink{sender: sender, url: url, log: log}
}

// NewWebhookSinkFromConfig builds a sink from environment settings. It returns
// nil when no endpoint is configured; a nil sink discards events, so the result
// can be passed to WithEventSink or MultiSink unchecked.
func NewWebhookSinkFromConfig(cfg webhook.Config, log *slog.Logger) *WebhookSink {
	if !cfg.Enabled() {
		return nil
	}
	return NewWebhookSink(webhook.NewSender(webhook.WithConfig(cfg), webhook.WithLogger(log)), cfg.URL, log)
}

func (s *WebhookSink) Publish(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	return s.sender.Send(ctx, s.url, event.EventName(), NewWebhookEnvelope(event))
}

// Forward delivers events from ch until it is closed or ctx ends. Failed
// deliveries are logged and skipped.
func (s *WebhookSink) Forward(ctx context.Context, ch <-chan Event) error {
	if s == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Publish(ctx, event); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.WarnContext(ctx, "subscription webhook delivery failed",
					logger.EventType(event.EventName()),
					logger.Subscriber(event.Subscriber().Key()),
					logger.SubscriptionID(event.SubscriptionID()),
					logger.Error(err))
			}
		}
	}
}
