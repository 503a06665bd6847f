package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists plans, subscriptions and usage.
// Implementations return ErrPlanNotFound, ErrSubscriptionNotFound and ErrUsageNotFound
// for missing records; any other error is treated as an infrastructure fault.
// Serialization per subscriber is provided by the Locker, not by the repository.
type Repository interface {
	FindPlan(ctx context.Context, id string) (*Plan, error)
	SavePlan(ctx context.Context, plan *Plan) error
	// DeletePlan soft-deletes the plan; historical subscriptions keep resolving it.
	DeletePlan(ctx context.Context, id string, at time.Time) error

	FindActiveSubscription(ctx context.Context, owner Owner, now time.Time) (*PlanSubscription, error)
	// ListSubscriptions returns every row of the owner ordered by StartsOn descending.
	ListSubscriptions(ctx context.Context, owner Owner) ([]PlanSubscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*PlanSubscription, error)
	SaveSubscription(ctx context.Context, sub *PlanSubscription) error
	// DeleteSubscription removes the row together with its usage records.
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	// ListRenewalCandidates returns owners whose latest row is not cancelled and is
	// either unpaid or a recurring period that expired at or before asOf.
	ListRenewalCandidates(ctx context.Context, asOf time.Time) ([]Owner, error)

	FindUsage(ctx context.Context, subscriptionID uuid.UUID, code string) (*UsageRecord, error)
	SaveUsage(ctx context.Context, usage *UsageRecord) error
}

// IsRenewalCandidate reports whether the owner's latest row qualifies for a renewal
// sweep at asOf. Repositories that cannot express this in their query language
// filter with it.
func IsRenewalCandidate(latest *PlanSubscription, asOf time.Time) bool {
	if latest == nil || latest.CancelledOn != nil {
		return false
	}
	if !latest.Active {
		return true
	}
	return latest.IsRecurring && !asOf.Before(latest.ExpiresOn)
}
