package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/planskit/pkg/clock"
)

// Renew starts a fresh period for a lapsed recurring subscriber, or retries the
// charge of the row the subscriber still owes.
func (s *service) Renew(ctx context.Context, owner Owner) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		state := SubscriberStateAt(subs, now)
		last := lastPaid(subs)
		if err := s.rules.check(ctx, state, opRenew, last); err != nil {
			return nil, err
		}

		if state == SubscriberDue {
			return s.retryCharge(ctx, owner, lastDue(subs), now)
		}

		plan, err := s.availablePlan(ctx, last.PlanID)
		if err != nil {
			return nil, err
		}
		days := last.RecurringEachDays
		if days < 1 {
			days = plan.Duration()
		}
		cfg := opConfig{recurring: true, paymentMethod: &last.PaymentMethod}

		sub, err := s.open(ctx, owner, subs, freshPeriod(plan, now, clock.AddDays(now, days), days), cfg, now)
		if sub != nil {
			s.emit(ctx, NewSubscription{EventMeta: newMeta(sub, now)})
		}
		return sub, err
	})
	return sub, s.report(ctx, "renew", owner, err)
}

// retryCharge re-attempts payment for the exact row that is owed. A row whose
// window already lapsed is re-anchored at now so the payment buys a full period.
func (s *service) retryCharge(ctx context.Context, owner Owner, due *PlanSubscription, now time.Time) (*PlanSubscription, error) {
	profile, charger, err := s.resolvePayment(ctx, owner, opConfig{paymentMethod: &due.PaymentMethod})
	if err != nil {
		return nil, err
	}

	if !now.Before(due.ExpiresOn) {
		days := max(1, due.RecurringEachDays)
		due.StartsOn = now.Add(-clock.BackdateTick)
		due.ExpiresOn = clock.AddDays(now, days)
		due.UpdatedAt = now
		if err := s.repo.SaveSubscription(ctx, due); err != nil {
			return nil, fmt.Errorf("save subscription %s: %w", due.ID, err)
		}
	}

	if charger == nil || due.Charge().IsZero() {
		due.Active = true
		due.UpdatedAt = now
		if err := s.repo.SaveSubscription(ctx, due); err != nil {
			return nil, fmt.Errorf("save subscription %s: %w", due.ID, err)
		}
		return due, nil
	}

	plan, err := s.repo.FindPlan(ctx, due.PlanID)
	if err != nil && !errors.Is(err, ErrPlanNotFound) {
		return nil, fmt.Errorf("find plan %s: %w", due.PlanID, err)
	}
	return due, s.settle(ctx, due, plan, profile, charger, now)
}
