package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/planskit/pkg/logger"
)

func usageLockKey(subscriptionID uuid.UUID, code string) string {
	return "usage:" + subscriptionID.String() + ":" + code
}

// RecordUsage consumes amount of a metered feature. The limit check and the
// increment run under one lock so concurrent calls cannot overshoot the limit;
// a call that would exceed it changes nothing.
func (s *service) RecordUsage(ctx context.Context, subscriptionID uuid.UUID, code string, amount decimal.Decimal) (*UsageRecord, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	rec, err := s.adjustUsage(ctx, subscriptionID, code, func(sub *PlanSubscription, f Feature, rec *UsageRecord) (Event, error) {
		used := rec.Used.Add(amount)
		if !f.IsUnlimited() && used.GreaterThan(decimal.NewFromInt(f.Limit)) {
			return nil, ErrLimitExceeded
		}
		rec.Used = used
		return FeatureConsumed{
			EventMeta: newMeta(sub, rec.UpdatedAt),
			Code:      code,
			Amount:    amount,
			Usage:     newUsageInfo(f, used),
		}, nil
	})
	if err != nil && !IsPrecondition(err) {
		s.log.ErrorContext(ctx, "failed to record feature usage",
			logger.SubscriptionID(subscriptionID), logger.Feature(code), logger.Error(err))
	}
	return rec, err
}

// ReleaseUsage gives back previously consumed allowance, flooring at zero.
func (s *service) ReleaseUsage(ctx context.Context, subscriptionID uuid.UUID, code string, amount decimal.Decimal) (*UsageRecord, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	return s.adjustUsage(ctx, subscriptionID, code, func(sub *PlanSubscription, f Feature, rec *UsageRecord) (Event, error) {
		used := rec.Used.Sub(amount)
		if used.IsNegative() {
			used = decimal.Zero
		}
		rec.Used = used
		return FeatureReleased{
			EventMeta: newMeta(sub, rec.UpdatedAt),
			Code:      code,
			Amount:    amount,
			Usage:     newUsageInfo(f, used),
		}, nil
	})
}

// Remaining reports the allowance left on a metered feature.
func (s *service) Remaining(ctx context.Context, subscriptionID uuid.UUID, code string) (UsageInfo, error) {
	_, feature, err := s.meteredFeature(ctx, subscriptionID, code)
	if err != nil {
		return UsageInfo{}, err
	}

	used := decimal.Zero
	rec, err := s.repo.FindUsage(ctx, subscriptionID, code)
	switch {
	case err == nil:
		used = rec.Used
	case !errors.Is(err, ErrUsageNotFound):
		return UsageInfo{}, fmt.Errorf("find usage: %w", err)
	}
	return newUsageInfo(feature, used), nil
}

type usageChange func(sub *PlanSubscription, f Feature, rec *UsageRecord) (Event, error)

func (s *service) adjustUsage(ctx context.Context, subscriptionID uuid.UUID, code string, change usageChange) (*UsageRecord, error) {
	unlock, err := s.lock(ctx, usageLockKey(subscriptionID, code))
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, feature, err := s.meteredFeature(ctx, subscriptionID, code)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec, err := s.repo.FindUsage(ctx, subscriptionID, code)
	switch {
	case errors.Is(err, ErrUsageNotFound):
		rec = newUsageRecord(subscriptionID, code, now)
	case err != nil:
		return nil, fmt.Errorf("find usage: %w", err)
	}

	// Work on a copy so a refused change leaves the loaded record untouched.
	next := *rec
	next.UpdatedAt = now
	event, err := change(sub, feature, &next)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveUsage(ctx, &next); err != nil {
		return nil, fmt.Errorf("save usage: %w", err)
	}
	s.emit(ctx, event)
	return &next, nil
}

func (s *service) meteredFeature(ctx context.Context, subscriptionID uuid.UUID, code string) (*PlanSubscription, Feature, error) {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, Feature{}, err
		}
		return nil, Feature{}, fmt.Errorf("get subscription: %w", err)
	}

	plan, err := s.repo.FindPlan(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, Feature{}, err
		}
		return nil, Feature{}, fmt.Errorf("find plan %s: %w", sub.PlanID, err)
	}

	feature, ok := plan.FindFeature(code)
	if !ok {
		return nil, Feature{}, ErrUnknownFeature
	}
	if !feature.IsMetered() {
		return nil, Feature{}, ErrNotMetered
	}
	return sub, feature, nil
}
