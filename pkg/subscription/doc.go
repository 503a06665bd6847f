// Package subscription implements a subscription lifecycle and entitlement engine:
// subscribers bind to time-bounded plans, consume metered features up to a limit,
// and move through subscribe, extend, upgrade, cancel and renew transitions.
//
// A subscriber is any host entity, referenced polymorphically by Owner (type + id).
// The engine enforces that a subscriber has at most one active subscription at any
// instant, and it keeps a failed or unreachable payment from corrupting state.
//
// # Architecture
//
// The package follows a service-oriented architecture with clear separation of concerns:
//
//   - Service: the lifecycle engine and usage meter
//   - Plan / Feature: priced, timed offerings with boolean features and metered limits
//   - PlanSubscription: one subscriber's bound period against a plan
//   - Repository: persists plans, subscriptions and usage (memory, Postgres, MongoDB)
//   - Locker: per-subscriber mutual exclusion (in-process, Redis, Postgres advisory locks)
//   - Charger: collects payment (Stripe, Paddle, or your own ChargerFunc)
//   - EventSink: receives lifecycle events (EventHub, MetricsSink, WebhookSink, MultiSink)
//
// Subscription state is never stored. It is derived from timestamps and flags by
// PlanSubscription.StateAt and SubscriberStateAt, and every lifecycle rule reads it
// from there.
//
// # Quick Start
//
//	import "github.com/dmitrymomot/planskit/pkg/subscription"
//
//	src, err := subscription.NewYAMLSource(catalogFile)
//	if err != nil {
//		return err
//	}
//	repo := subscription.NewMemoryRepository()
//	if err := subscription.SeedPlans(ctx, repo, src); err != nil {
//		return err
//	}
//
//	stripeCharger, err := subscription.NewStripeCharger(stripeCfg)
//	if err != nil {
//		return err
//	}
//
//	svc := subscription.NewService(repo,
//		subscription.WithLogger(log),
//		subscription.WithCharger("stripe", stripeCharger),
//		subscription.WithEventSink(hub),
//	)
//
//	owner := subscription.NewOwner("team", teamID)
//	sub, err := svc.Subscribe(ctx, owner, "pro", 30)
//
// # Payments
//
// A subscription without a payment method (or with a zero price) is active as soon
// as it is created. Otherwise the row is first persisted inactive, then the
// registered Charger is called outside any storage transaction:
//
//   - success flips Active and emits ChargeSuccessful
//   - a decline (an error wrapping ErrChargeDeclined) emits ChargeFailed and leaves
//     the row Due; the call itself succeeds
//   - any other charge error emits ChargeFailed and is returned with the row
//
// A Due subscription is replaced by the next Subscribe or charged again by Renew.
// The payment method comes from WithPaymentMethod, or from the PaymentProfileResolver
// (by default the profile stored with SetPaymentProfileToContext).
//
// # Extensions
//
// ExtendWith and ExtendUntil either move the active period's expiry (startFromNow)
// or queue a follow-on period after the last queued one. UpgradeTo and UpgradeToUntil
// share that mechanism and then swap the plan reference, so upgrading to the current
// plan is the same as extending. Without an active period they start a fresh one on
// the last paid plan or the plan set with WithDefaultPlan.
//
// # Error Handling
//
// Refused operations return sentinel errors that are expected outcomes, not faults:
//
//	sub, err := svc.Subscribe(ctx, owner, "pro", 30)
//	switch {
//	case errors.Is(err, subscription.ErrAlreadyActive):
//		// show the current plan
//	case subscription.IsPrecondition(err):
//		// other rule refusal
//	case err != nil:
//		// storage or payment provider fault
//	}
//
// # Usage
//
// RecordUsage consumes a metered feature; it fails with ErrLimitExceeded and changes
// nothing when the limit would be exceeded. A limit of 0 means unlimited.
//
//	rec, err := svc.RecordUsage(ctx, sub.ID, "api_calls", decimal.NewFromInt(1))
//	info, err := svc.Remaining(ctx, sub.ID, "api_calls")
//
// # Renewals
//
// Renewer sweeps Repository.ListRenewalCandidates on an interval and renews each
// subscriber with bounded concurrency:
//
//	renewer := subscription.NewRenewer(svc, repo, subscription.WithRenewerConfig(cfg))
//	go renewer.Run(ctx)
//
// # Webhooks
//
// WebhookSink posts every event to an HTTP endpoint through pkg/webhook. Drain
// an EventHub listener so retries never hold up a lifecycle call:
//
//	hub := subscription.NewEventHub(256)
//	if sink := subscription.NewWebhookSinkFromConfig(cfg.Webhook, log); sink != nil {
//		go sink.Forward(ctx, hub.Listen(ctx))
//	}
package subscription
