package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event names as published to sinks.
const (
	EventNewSubscription          = "subscription.created"
	EventNewSubscriptionUntil     = "subscription.created_until"
	EventExtendSubscription       = "subscription.extended"
	EventExtendSubscriptionUntil  = "subscription.extended_until"
	EventUpgradeSubscription      = "subscription.upgraded"
	EventUpgradeSubscriptionUntil = "subscription.upgraded_until"
	EventCancelSubscription       = "subscription.cancelled"
	EventFeatureConsumed          = "subscription.feature_consumed"
	EventFeatureReleased          = "subscription.feature_released"
	EventChargeSuccessful         = "subscription.charge_successful"
	EventChargeFailed             = "subscription.charge_failed"
)

// Event is a completed lifecycle transition.
type Event interface {
	EventName() string
	Subscriber() Owner
	SubscriptionID() uuid.UUID
}

// EventMeta is embedded in every event. Subscription is a value snapshot taken
// when the event was raised, later mutations do not leak into it.
type EventMeta struct {
	Subscription PlanSubscription
	OccurredAt   time.Time
}

func newMeta(sub *PlanSubscription, now time.Time) EventMeta {
	return EventMeta{Subscription: *sub.clone(), OccurredAt: now}
}

func (m EventMeta) Subscriber() Owner         { return m.Subscription.Owner }
func (m EventMeta) SubscriptionID() uuid.UUID { return m.Subscription.ID }
func (m EventMeta) Occurred() time.Time       { return m.OccurredAt }

type NewSubscription struct {
	EventMeta
}

func (NewSubscription) EventName() string { return EventNewSubscription }

type NewSubscriptionUntil struct {
	EventMeta
	ExpiresOn time.Time
}

func (NewSubscriptionUntil) EventName() string { return EventNewSubscriptionUntil }

// ExtendSubscription reports an extension. NewSubscription is nil for in-place
// extensions and holds the queued follow-on period otherwise.
type ExtendSubscription struct {
	EventMeta
	NewSubscription *PlanSubscription
	StartFromNow    bool
	Days            int
}

func (ExtendSubscription) EventName() string { return EventExtendSubscription }

type ExtendSubscriptionUntil struct {
	EventMeta
	NewSubscription *PlanSubscription
	StartFromNow    bool
	ExpiresOn       time.Time
}

func (ExtendSubscriptionUntil) EventName() string { return EventExtendSubscriptionUntil }

type UpgradeSubscription struct {
	EventMeta
	OldPlanID    string
	NewPlanID    string
	Comparison   *PlanComparison
	StartFromNow bool
	Days         int
}

func (UpgradeSubscription) EventName() string { return EventUpgradeSubscription }

type UpgradeSubscriptionUntil struct {
	EventMeta
	OldPlanID    string
	NewPlanID    string
	Comparison   *PlanComparison
	StartFromNow bool
	ExpiresOn    time.Time
}

func (UpgradeSubscriptionUntil) EventName() string { return EventUpgradeSubscriptionUntil }

type CancelSubscription struct {
	EventMeta
}

func (CancelSubscription) EventName() string { return EventCancelSubscription }

// FeatureConsumed carries the amount just consumed and the resulting allowance.
type FeatureConsumed struct {
	EventMeta
	Code   string
	Amount decimal.Decimal
	Usage  UsageInfo
}

func (FeatureConsumed) EventName() string { return EventFeatureConsumed }

type FeatureReleased struct {
	EventMeta
	Code   string
	Amount decimal.Decimal
	Usage  UsageInfo
}

func (FeatureReleased) EventName() string { return EventFeatureReleased }

type ChargeSuccessful struct {
	EventMeta
	Receipt ChargeReceipt
}

func (ChargeSuccessful) EventName() string { return EventChargeSuccessful }

// ChargeFailed reports a declined or failed charge. Declined distinguishes a
// provider decline from an unreachable provider.
type ChargeFailed struct {
	EventMeta
	Amount   Money
	Declined bool
	Err      error `json:"-"`
}

func (ChargeFailed) EventName() string { return EventChargeFailed }

// EventSink receives lifecycle events. Publish errors are logged by the engine
// and never fail the operation that raised the event.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

func (f EventSinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// MultiSink publishes to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
