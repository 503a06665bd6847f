package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/planskit/pkg/clock"
	"github.com/dmitrymomot/planskit/pkg/logger"
)

// Service defines the public interface of the subscription lifecycle engine.
// Every lifecycle operation is scoped to one subscriber and runs serialized
// against that subscriber's other operations.
type Service interface {
	// Lifecycle
	Subscribe(ctx context.Context, owner Owner, planID string, days int, opts ...OpOption) (*PlanSubscription, error)
	SubscribeUntil(ctx context.Context, owner Owner, planID string, until time.Time, opts ...OpOption) (*PlanSubscription, error)
	ExtendWith(ctx context.Context, owner Owner, days int, startFromNow bool, opts ...OpOption) (*PlanSubscription, error)
	ExtendUntil(ctx context.Context, owner Owner, until time.Time, startFromNow bool, opts ...OpOption) (*PlanSubscription, error)
	UpgradeTo(ctx context.Context, owner Owner, planID string, days int, startFromNow bool, opts ...OpOption) (*PlanSubscription, error)
	UpgradeToUntil(ctx context.Context, owner Owner, planID string, until time.Time, startFromNow bool, opts ...OpOption) (*PlanSubscription, error)
	Cancel(ctx context.Context, owner Owner) (*PlanSubscription, error)
	Renew(ctx context.Context, owner Owner) (*PlanSubscription, error)

	// Reads
	ActiveSubscription(ctx context.Context, owner Owner) (*PlanSubscription, error)
	Subscriptions(ctx context.Context, owner Owner) ([]PlanSubscription, error)
	State(ctx context.Context, owner Owner) (SubscriberState, error)
	HasFeature(ctx context.Context, owner Owner, code string) bool

	// Usage
	RecordUsage(ctx context.Context, subscriptionID uuid.UUID, code string, amount decimal.Decimal) (*UsageRecord, error)
	ReleaseUsage(ctx context.Context, subscriptionID uuid.UUID, code string, amount decimal.Decimal) (*UsageRecord, error)
	Remaining(ctx context.Context, subscriptionID uuid.UUID, code string) (UsageInfo, error)
}

type service struct {
	repo          Repository
	clock         clock.Clock
	log           *slog.Logger
	sink          EventSink
	locker        Locker
	chargers      map[string]Charger
	profiles      PaymentProfileResolver
	defaultPlanID string
	lockTimeout   time.Duration
	rules         *lifecycleRules
}

// NewService creates a new Service backed by repo.
// Panics if repo is nil to fail fast during initialization.
// Defaults: real UTC clock, discarded logs, no event sink, in-process locker,
// no chargers (only manual subscriptions) and the context payment profile resolver.
func NewService(repo Repository, opts ...ServiceOption) Service {
	if repo == nil {
		panic("subscription: Repository is required")
	}

	s := &service{
		repo:        repo,
		clock:       clock.Real(),
		log:         slog.New(slog.DiscardHandler),
		sink:        NopSink{},
		locker:      NewLocalLocker(),
		chargers:    make(map[string]Charger),
		profiles:    PaymentProfileContextResolver,
		lockTimeout: DefaultLockTimeout,
		rules:       newLifecycleRules(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type txFunc func(ctx context.Context, subs []PlanSubscription, now time.Time) (*PlanSubscription, error)

// withOwner runs fn holding the subscriber lock over a fresh read of its rows.
func (s *service) withOwner(ctx context.Context, owner Owner, fn txFunc) (*PlanSubscription, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, owner.Key())
	if err != nil {
		return nil, err
	}
	defer unlock()

	subs, err := s.repo.ListSubscriptions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	return fn(ctx, subs, s.clock.Now())
}

// lock bounds only the acquisition by lockTimeout; the held section runs on ctx.
func (s *service) lock(ctx context.Context, key string) (func(), error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	unlock, err := s.locker.Lock(lockCtx, key)
	if err != nil {
		return nil, errors.Join(ErrLockNotAcquired, err)
	}
	return unlock, nil
}

// availablePlan resolves a plan that may still start new periods.
func (s *service) availablePlan(ctx context.Context, id string) (*Plan, error) {
	plan, err := s.repo.FindPlan(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find plan %s: %w", id, err)
	}
	if plan.IsDeleted() {
		return nil, ErrPlanUnavailable
	}
	return plan, nil
}

// fallbackPlan picks the plan for an extension without an active period:
// the last paid plan the subscriber did not cancel, then the configured
// default plan.
func (s *service) fallbackPlan(ctx context.Context, subs []PlanSubscription) (*Plan, error) {
	if last := lastKept(subs); last != nil {
		plan, err := s.availablePlan(ctx, last.PlanID)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, ErrPlanNotFound) && !errors.Is(err, ErrPlanUnavailable) {
			return nil, err
		}
	}
	if s.defaultPlanID != "" {
		return s.availablePlan(ctx, s.defaultPlanID)
	}
	return nil, ErrNoFallbackPlan
}

// resolvePayment picks the payment profile and its charger. A method without a
// registered charger is a configuration fault reported before anything is written.
func (s *service) resolvePayment(ctx context.Context, owner Owner, cfg opConfig) (PaymentProfile, Charger, error) {
	profile, err := s.profiles(ctx, owner)
	if err != nil {
		return PaymentProfile{}, nil, fmt.Errorf("resolve payment profile: %w", err)
	}
	if cfg.paymentMethod != nil {
		profile.Method = *cfg.paymentMethod
	}
	if profile.Method == PaymentMethodManual {
		return profile, nil, nil
	}

	charger, ok := s.chargers[profile.Method]
	if !ok {
		return PaymentProfile{}, nil, errors.Join(ErrNoChargerRegistered, fmt.Errorf("payment method %q", profile.Method))
	}
	return profile, charger, nil
}

// emit publishes an event. Sink failures never fail the operation.
func (s *service) emit(ctx context.Context, event Event) {
	if err := s.sink.Publish(ctx, event); err != nil {
		s.log.WarnContext(ctx, "failed to publish subscription event",
			logger.EventType(event.EventName()),
			logger.Subscriber(event.Subscriber().Key()),
			logger.SubscriptionID(event.SubscriptionID()),
			logger.Error(err),
		)
	}
}

// report logs the outcome of an operation. Precondition outcomes are expected
// and stay at debug level.
func (s *service) report(ctx context.Context, op string, owner Owner, err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{logger.Operation(op), logger.Subscriber(owner.Key()), logger.Error(err)}
	if IsPrecondition(err) {
		s.log.DebugContext(ctx, "subscription operation refused", attrs...)
		return err
	}
	s.log.ErrorContext(ctx, "subscription operation failed", attrs...)
	return err
}

func (s *service) ActiveSubscription(ctx context.Context, owner Owner) (*PlanSubscription, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindActiveSubscription(ctx, owner, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("find active subscription: %w", err)
	}
	return sub, nil
}

func (s *service) Subscriptions(ctx context.Context, owner Owner) ([]PlanSubscription, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubscriptions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *service) State(ctx context.Context, owner Owner) (SubscriberState, error) {
	subs, err := s.Subscriptions(ctx, owner)
	if err != nil {
		return "", err
	}
	return SubscriberStateAt(subs, s.clock.Now()), nil
}

// HasFeature reports whether the subscriber's active plan carries the feature code.
// Failures are treated as "no access".
func (s *service) HasFeature(ctx context.Context, owner Owner, code string) bool {
	sub, err := s.ActiveSubscription(ctx, owner)
	if err != nil {
		return false
	}
	plan, err := s.repo.FindPlan(ctx, sub.PlanID)
	if err != nil {
		s.log.DebugContext(ctx, "feature check without plan", logger.PlanID(sub.PlanID), logger.Error(err))
		return false
	}
	_, ok := plan.FindFeature(code)
	return ok
}
