package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/planskit/pkg/clock"
	"github.com/dmitrymomot/planskit/pkg/logger"
)

// period describes a row about to be created.
type period struct {
	plan          *Plan
	startsOn      time.Time
	expiresOn     time.Time
	recurringDays int
}

// freshPeriod starts now, back-dated by one tick so the row is active immediately.
func freshPeriod(plan *Plan, now, expiresOn time.Time, recurringDays int) period {
	return period{
		plan:          plan,
		startsOn:      now.Add(-clock.BackdateTick),
		expiresOn:     expiresOn,
		recurringDays: recurringDays,
	}
}

// extension describes how an existing chain grows, by days or up to a date.
type extension struct {
	startFromNow bool
	days         int
	until        time.Time
}

func (e extension) expiry(from time.Time) time.Time {
	if e.days > 0 {
		return clock.AddDays(from, e.days)
	}
	return e.until
}

// draft holds rows changed by an extension, not yet persisted.
type draft struct {
	target  *PlanSubscription
	created bool
	changed []*PlanSubscription
}

func (s *service) Subscribe(ctx context.Context, owner Owner, planID string, days int, opts ...OpOption) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if days < 1 {
			return nil, ErrInvalidDuration
		}
		if err := s.rules.check(ctx, SubscriberStateAt(subs, now), opSubscribe, nil); err != nil {
			return nil, err
		}
		plan, err := s.availablePlan(ctx, planID)
		if err != nil {
			return nil, err
		}

		sub, err := s.open(ctx, owner, subs, freshPeriod(plan, now, clock.AddDays(now, days), days), newOpConfig(opts), now)
		if sub != nil {
			s.emit(ctx, NewSubscription{EventMeta: newMeta(sub, now)})
		}
		return sub, err
	})
	return sub, s.report(ctx, "subscribe", owner, err)
}

func (s *service) SubscribeUntil(ctx context.Context, owner Owner, planID string, until time.Time, opts ...OpOption) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if !until.After(now) {
			return nil, ErrDateNotInFuture
		}
		if err := s.rules.check(ctx, SubscriberStateAt(subs, now), opSubscribe, nil); err != nil {
			return nil, err
		}
		plan, err := s.availablePlan(ctx, planID)
		if err != nil {
			return nil, err
		}

		return s.openUntil(ctx, owner, subs, plan, until, newOpConfig(opts), now)
	})
	return sub, s.report(ctx, "subscribe_until", owner, err)
}

func (s *service) openUntil(ctx context.Context, owner Owner, subs []PlanSubscription, plan *Plan, until time.Time, cfg opConfig, now time.Time) (*PlanSubscription, error) {
	days := max(1, clock.DiffInDays(now, until))
	sub, err := s.open(ctx, owner, subs, freshPeriod(plan, now, until, days), cfg, now)
	if sub != nil {
		s.emit(ctx, NewSubscriptionUntil{EventMeta: newMeta(sub, now), ExpiresOn: until})
	}
	return sub, err
}

func (s *service) ExtendWith(ctx context.Context, owner Owner, days int, startFromNow bool, opts ...OpOption) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if days < 1 {
			return nil, ErrInvalidDuration
		}
		cfg := newOpConfig(opts)

		active := activeAt(subs, now)
		if active == nil {
			plan, err := s.fallbackPlan(ctx, subs)
			if err != nil {
				return nil, err
			}
			sub, err := s.open(ctx, owner, subs, freshPeriod(plan, now, clock.AddDays(now, days), days), cfg, now)
			if sub != nil {
				s.emit(ctx, NewSubscription{EventMeta: newMeta(sub, now)})
			}
			return sub, err
		}

		d, err := s.extend(ctx, owner, subs, active, nil, extension{startFromNow: startFromNow, days: days}, cfg, now)
		if err != nil {
			return nil, err
		}
		if err := s.commit(ctx, d); err != nil {
			return nil, err
		}

		event := ExtendSubscription{EventMeta: newMeta(active, now), StartFromNow: startFromNow, Days: days}
		if d.created {
			event.NewSubscription = d.target.clone()
		}
		s.emit(ctx, event)
		return d.target, nil
	})
	return sub, s.report(ctx, "extend", owner, err)
}

func (s *service) ExtendUntil(ctx context.Context, owner Owner, until time.Time, startFromNow bool, opts ...OpOption) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if !until.After(now) {
			return nil, ErrDateNotInFuture
		}
		cfg := newOpConfig(opts)

		active := activeAt(subs, now)
		if active == nil {
			plan, err := s.fallbackPlan(ctx, subs)
			if err != nil {
				return nil, err
			}
			return s.openUntil(ctx, owner, subs, plan, until, cfg, now)
		}

		d, err := s.extend(ctx, owner, subs, active, nil, extension{startFromNow: startFromNow, until: until}, cfg, now)
		if err != nil {
			return nil, err
		}
		if err := s.commit(ctx, d); err != nil {
			return nil, err
		}

		event := ExtendSubscriptionUntil{EventMeta: newMeta(active, now), StartFromNow: startFromNow, ExpiresOn: until}
		if d.created {
			event.NewSubscription = d.target.clone()
		}
		s.emit(ctx, event)
		return d.target, nil
	})
	return sub, s.report(ctx, "extend_until", owner, err)
}

func (s *service) UpgradeTo(ctx context.Context, owner Owner, planID string, days int, startFromNow bool, opts ...OpOption) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if days < 1 {
			return nil, ErrInvalidDuration
		}
		plan, err := s.availablePlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		cfg := newOpConfig(opts)

		active := activeAt(subs, now)
		if active == nil {
			sub, err := s.open(ctx, owner, subs, freshPeriod(plan, now, clock.AddDays(now, days), days), cfg, now)
			if sub != nil {
				s.emit(ctx, NewSubscription{EventMeta: newMeta(sub, now)})
			}
			return sub, err
		}

		oldPlanID := active.PlanID
		comparison, err := s.compare(ctx, oldPlanID, plan)
		if err != nil {
			return nil, err
		}

		d, err := s.extend(ctx, owner, subs, active, plan, extension{startFromNow: startFromNow, days: days}, cfg, now)
		if err != nil {
			return nil, err
		}
		swapPlan(d.target, plan, now)
		if err := s.commit(ctx, d); err != nil {
			return nil, err
		}

		s.emit(ctx, UpgradeSubscription{
			EventMeta:    newMeta(d.target, now),
			OldPlanID:    oldPlanID,
			NewPlanID:    plan.ID,
			Comparison:   comparison,
			StartFromNow: startFromNow,
			Days:         days,
		})
		return d.target, nil
	})
	return sub, s.report(ctx, "upgrade", owner, err)
}

func (s *service) UpgradeToUntil(ctx context.Context, owner Owner, planID string, until time.Time, startFromNow bool, opts ...OpOption) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if !until.After(now) {
			return nil, ErrDateNotInFuture
		}
		plan, err := s.availablePlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		cfg := newOpConfig(opts)

		active := activeAt(subs, now)
		if active == nil {
			return s.openUntil(ctx, owner, subs, plan, until, cfg, now)
		}

		oldPlanID := active.PlanID
		comparison, err := s.compare(ctx, oldPlanID, plan)
		if err != nil {
			return nil, err
		}

		d, err := s.extend(ctx, owner, subs, active, plan, extension{startFromNow: startFromNow, until: until}, cfg, now)
		if err != nil {
			return nil, err
		}
		// Nothing is persisted yet; refusing here leaves the plan reference untouched.
		if d.target.ExpiresOn.After(until) {
			return nil, ErrExpiryBeyondRequested
		}
		swapPlan(d.target, plan, now)
		if err := s.commit(ctx, d); err != nil {
			return nil, err
		}

		s.emit(ctx, UpgradeSubscriptionUntil{
			EventMeta:    newMeta(d.target, now),
			OldPlanID:    oldPlanID,
			NewPlanID:    plan.ID,
			Comparison:   comparison,
			StartFromNow: startFromNow,
			ExpiresOn:    until,
		})
		return d.target, nil
	})
	return sub, s.report(ctx, "upgrade_until", owner, err)
}

func (s *service) Cancel(ctx context.Context, owner Owner) (*PlanSubscription, error) {
	sub, err := s.withOwner(ctx, owner, func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error) {
		if err := s.rules.check(ctx, SubscriberStateAt(subs, now), opCancel, nil); err != nil {
			return nil, err
		}

		active := activeAt(subs, now)

		// Queued periods that were never paid are dropped so nothing is charged
		// after the cancelled period ends. Paid ones keep their access but no
		// longer renew. The active row is written last.
		for _, q := range queuedAfter(subs, active) {
			if q.IsUnpaid() {
				if err := s.repo.DeleteSubscription(ctx, q.ID); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
					return nil, fmt.Errorf("drop unpaid queued subscription %s: %w", q.ID, err)
				}
				continue
			}
			if !q.IsRecurring {
				continue
			}
			q.IsRecurring = false
			q.UpdatedAt = now
			if err := s.repo.SaveSubscription(ctx, q); err != nil {
				return nil, fmt.Errorf("save subscription %s: %w", q.ID, err)
			}
		}

		cancelledOn := now
		active.CancelledOn = &cancelledOn
		// Cancellation always disables auto-renewal; access lasts until expiry.
		active.IsRecurring = false
		active.UpdatedAt = now

		if err := s.repo.SaveSubscription(ctx, active); err != nil {
			return nil, fmt.Errorf("save subscription %s: %w", active.ID, err)
		}
		s.emit(ctx, CancelSubscription{EventMeta: newMeta(active, now)})
		return active, nil
	})
	return sub, s.report(ctx, "cancel", owner, err)
}

// open creates a fresh period. Superseded unpaid rows go first, the new row is
// persisted in its final or inactive shape, and only then is a charge attempted.
func (s *service) open(ctx context.Context, owner Owner, subs []PlanSubscription, p period, cfg opConfig, now time.Time) (*PlanSubscription, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	profile, charger, err := s.resolvePayment(ctx, owner, cfg)
	if err != nil {
		return nil, err
	}

	for _, due := range unpaidRows(subs) {
		if err := s.repo.DeleteSubscription(ctx, due.ID); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("supersede unpaid subscription %s: %w", due.ID, err)
		}
	}

	sub := newRow(owner, p, profile.Method, cfg, now)
	if err := s.repo.SaveSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	if sub.Active {
		return sub, nil
	}
	return sub, s.settle(ctx, sub, p.plan, profile, charger, now)
}

// extend computes the rows changed by growing the chain of active.
// In-place extensions shift queued follow-on rows by the same delta;
// queued extensions append a new row after the tail of the chain.
func (s *service) extend(ctx context.Context, owner Owner, subs []PlanSubscription, active *PlanSubscription, plan *Plan, ext extension, cfg opConfig, now time.Time) (*draft, error) {
	if ext.startFromNow {
		newExpiry := ext.expiry(active.ExpiresOn)
		delta := newExpiry.Sub(active.ExpiresOn)

		queued := queuedAfter(subs, active)
		slices.SortFunc(queued, func(a, b *PlanSubscription) int {
			return a.StartsOn.Compare(b.StartsOn)
		})
		for _, q := range queued {
			q.StartsOn = q.StartsOn.Add(delta)
			q.ExpiresOn = q.ExpiresOn.Add(delta)
			q.UpdatedAt = now
		}
		active.ExpiresOn = newExpiry
		active.UpdatedAt = now

		// Rows are saved one by one, so order the writes so that every
		// prefix leaves the chain free of overlaps: growing moves the
		// farthest row first, shrinking pulls the active row in first.
		d := &draft{target: active}
		if delta > 0 {
			slices.Reverse(queued)
			d.changed = append(queued, active)
		} else {
			d.changed = append([]*PlanSubscription{active}, queued...)
		}
		return d, nil
	}

	start := chainTail(subs, active).ExpiresOn
	recurringDays := ext.days
	if ext.days == 0 {
		if !ext.until.After(start) {
			return nil, ErrDateBeforeCurrentPeriod
		}
		recurringDays = max(1, clock.DiffInDays(start, ext.until))
	}

	if plan == nil {
		var err error
		if plan, err = s.availablePlan(ctx, active.PlanID); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	profile, _, err := s.resolvePayment(ctx, owner, cfg)
	if err != nil {
		return nil, err
	}

	// Queued rows are never charged up front: paid ones wait as Due for renewal.
	row := newRow(owner, period{plan: plan, startsOn: start, expiresOn: ext.expiry(start), recurringDays: recurringDays}, profile.Method, cfg, now)
	return &draft{target: row, created: true, changed: []*PlanSubscription{row}}, nil
}

func (s *service) commit(ctx context.Context, d *draft) error {
	for _, row := range d.changed {
		if err := s.repo.SaveSubscription(ctx, row); err != nil {
			return fmt.Errorf("save subscription %s: %w", row.ID, err)
		}
	}
	return nil
}

func (s *service) compare(ctx context.Context, oldPlanID string, target *Plan) (*PlanComparison, error) {
	old, err := s.repo.FindPlan(ctx, oldPlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find plan %s: %w", oldPlanID, err)
	}
	return ComparePlans(old, target), nil
}

// settle charges an inactive row. Success flips Active; a decline leaves the row
// Due and is absorbed; any other failure propagates. The row is never retracted.
func (s *service) settle(ctx context.Context, sub *PlanSubscription, plan *Plan, profile PaymentProfile, charger Charger, now time.Time) error {
	req := ChargeRequest{
		Owner:          sub.Owner,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Amount:         sub.Charge(),
		Profile:        profile,
	}
	if plan != nil {
		req.PriceRef = plan.ProviderPriceID
	}

	receipt, err := charger.Charge(ctx, req)
	if err != nil {
		declined := errors.Is(err, ErrChargeDeclined)
		s.emit(ctx, ChargeFailed{EventMeta: newMeta(sub, now), Amount: req.Amount, Declined: declined, Err: err})
		if declined {
			s.log.InfoContext(ctx, "subscription charge declined",
				logger.Subscriber(sub.Owner.Key()),
				logger.SubscriptionID(sub.ID),
				logger.PaymentMethod(sub.PaymentMethod),
				logger.Error(err),
			)
			return nil
		}
		return fmt.Errorf("charge subscription %s: %w", sub.ID, err)
	}

	sub.Active = true
	sub.UpdatedAt = now
	if err := s.repo.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("activate charged subscription %s: %w", sub.ID, err)
	}

	if receipt == nil {
		receipt = &ChargeReceipt{Amount: req.Amount, ChargedAt: now}
	}
	s.log.InfoContext(ctx, "subscription charged",
		logger.Subscriber(sub.Owner.Key()),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(sub.PlanID),
		logger.PaymentMethod(sub.PaymentMethod),
	)
	s.emit(ctx, ChargeSuccessful{EventMeta: newMeta(sub, now), Receipt: *receipt})
	return nil
}

// newRow builds a subscription. It is active right away when nothing has to be
// charged: manual payment or a zero price.
func newRow(owner Owner, p period, method string, cfg opConfig, now time.Time) *PlanSubscription {
	price := p.plan.Price
	if cfg.price != nil {
		price = *cfg.price
	}
	return &PlanSubscription{
		ID:                uuid.New(),
		PlanID:            p.plan.ID,
		Owner:             owner,
		PaymentMethod:     method,
		Active:            method == PaymentMethodManual || price.IsZero(),
		ChargingPrice:     price.Amount,
		ChargingCurrency:  price.Currency,
		IsRecurring:       cfg.recurring,
		RecurringEachDays: max(1, p.recurringDays),
		StartsOn:          p.startsOn,
		ExpiresOn:         p.expiresOn,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func swapPlan(sub *PlanSubscription, plan *Plan, now time.Time) {
	if sub.PlanID != plan.ID {
		sub.PlanID = plan.ID
		sub.UpdatedAt = now
	}
}
