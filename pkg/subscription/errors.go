package subscription

import "errors"

var (
	ErrInvalidOwner             = errors.New("subscriber owner type and id are required")
	ErrInvalidPrice             = errors.New("invalid subscription price")
	ErrInvalidCurrency          = errors.New("invalid ISO 4217 currency code")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")

	ErrInvalidDuration         = errors.New("subscription duration must be at least one day")
	ErrDateNotInFuture         = errors.New("subscription date must be in the future")
	ErrDateBeforeCurrentPeriod = errors.New("subscription date ends before the current period")
	ErrExpiryBeyondRequested   = errors.New("subscription would expire after the requested date")

	ErrAlreadyActive         = errors.New("subscriber already has an active subscription")
	ErrNoActiveSubscription  = errors.New("subscriber has no active subscription")
	ErrAlreadyCancelled      = errors.New("subscription already cancelled")
	ErrSubscriptionCancelled = errors.New("subscription is cancelled")
	ErrNotRecurring          = errors.New("subscription is not recurring")
	ErrNoSubscriptions       = errors.New("subscriber has no subscriptions")
	ErrNothingToRenew        = errors.New("subscriber has no paid subscription to renew")
	ErrNoFallbackPlan        = errors.New("no previous or default plan to subscribe to")

	ErrInvalidSubscriptionState = errors.New("invalid subscription state")

	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrPlanUnavailable      = errors.New("subscription plan is no longer available")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUsageNotFound        = errors.New("usage record not found")

	ErrLimitExceeded  = errors.New("feature limit exceeded")
	ErrUnknownFeature = errors.New("feature not found on subscription plan")
	ErrNotMetered     = errors.New("feature is not metered")
	ErrInvalidAmount  = errors.New("usage amount must not be negative")

	ErrChargeDeclined      = errors.New("charge declined")
	ErrNoChargerRegistered = errors.New("no charger registered for payment method")
	ErrLockNotAcquired     = errors.New("subscriber lock not acquired")

	ErrFailedToLoadPlans = errors.New("failed to load subscription plans")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrMissingProviderCustomerID  = errors.New("provider customer ID not available")
	ErrMissingPriceID             = errors.New("price ID is required")
)

var preconditions = []error{
	ErrInvalidOwner,
	ErrInvalidPrice,
	ErrInvalidCurrency,
	ErrInvalidDuration,
	ErrDateNotInFuture,
	ErrDateBeforeCurrentPeriod,
	ErrExpiryBeyondRequested,
	ErrAlreadyActive,
	ErrNoActiveSubscription,
	ErrAlreadyCancelled,
	ErrSubscriptionCancelled,
	ErrNotRecurring,
	ErrNoSubscriptions,
	ErrNothingToRenew,
	ErrNoFallbackPlan,
	ErrPlanNotFound,
	ErrPlanUnavailable,
	ErrSubscriptionNotFound,
	ErrLimitExceeded,
	ErrUnknownFeature,
	ErrNotMetered,
	ErrInvalidAmount,
}

// IsPrecondition reports whether err is an expected domain outcome rather than a
// fault. Callers should treat these as normal results and not log them as errors.
func IsPrecondition(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range preconditions {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
