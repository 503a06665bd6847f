package subscription

import (
	"context"
	"errors"

	"github.com/dmitrymomot/planskit/pkg/statemachine"
)

// operation is a subscriber-level lifecycle event.
type operation string

const (
	opSubscribe operation = "subscribe"
	opCancel    operation = "cancel"
	opRenew     operation = "renew"
)

// lifecycleRules decides which subscriber states admit an operation.
// Extensions and upgrades are absent: they fall back to a fresh period instead
// of being refused.
type lifecycleRules struct {
	table    *statemachine.Table[SubscriberState, operation]
	refusals map[operation]map[SubscriberState]error
}

func newLifecycleRules() *lifecycleRules {
	inactive := []SubscriberState{SubscriberNone, SubscriberDue, SubscriberCancelled, SubscriberExpired}

	return &lifecycleRules{
		table: statemachine.MustNewTable(
			statemachine.WithFanIn[SubscriberState, operation](SubscriberActive, opSubscribe, inactive),
			statemachine.WithTransition[SubscriberState, operation](SubscriberActive, SubscriberPendingCancellation, opCancel),
			statemachine.WithTransition[SubscriberState, operation](SubscriberDue, SubscriberActive, opRenew),
			statemachine.WithTransition[SubscriberState, operation](SubscriberExpired, SubscriberActive, opRenew,
				statemachine.WithGuard[SubscriberState, operation](renewable),
			),
		),
		refusals: map[operation]map[SubscriberState]error{
			opSubscribe: {
				SubscriberActive:              ErrAlreadyActive,
				SubscriberPendingCancellation: ErrAlreadyActive,
			},
			opCancel: {
				SubscriberPendingCancellation: ErrAlreadyCancelled,
				SubscriberNone:                ErrNoActiveSubscription,
				SubscriberDue:                 ErrNoActiveSubscription,
				SubscriberCancelled:           ErrNoActiveSubscription,
				SubscriberExpired:             ErrNoActiveSubscription,
			},
			opRenew: {
				SubscriberNone:                ErrNoSubscriptions,
				SubscriberActive:              ErrAlreadyActive,
				SubscriberPendingCancellation: ErrAlreadyActive,
				SubscriberCancelled:           ErrSubscriptionCancelled,
			},
		},
	}
}

// renewable guards renewal of a lapsed period: the last paid row must still recur.
func renewable(_ context.Context, _ SubscriberState, _ operation, data any) bool {
	last, _ := data.(*PlanSubscription)
	return last != nil && last.CancelledOn == nil && last.IsRecurring
}

// check maps a refused transition to its precondition error.
func (r *lifecycleRules) check(ctx context.Context, state SubscriberState, op operation, last *PlanSubscription) error {
	_, err := r.table.Target(ctx, state, op, last)
	if err == nil {
		return nil
	}

	if statemachine.IsTransitionRejectedError(err) {
		switch {
		case last == nil:
			return ErrNothingToRenew
		case last.CancelledOn != nil:
			return ErrSubscriptionCancelled
		default:
			return ErrNotRecurring
		}
	}

	if refusal, ok := r.refusals[op][state]; ok {
		return refusal
	}
	return errors.Join(ErrInvalidSubscriptionState, err)
}
