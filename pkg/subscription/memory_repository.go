package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository kept in process memory. Records are deep-copied
// on the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu            sync.RWMutex
	plans         map[string]Plan
	subscriptions map[uuid.UUID]PlanSubscription
	usage         map[uuid.UUID]map[string]UsageRecord
}

// NewMemoryRepository creates an in-memory repository seeded with plans.
func NewMemoryRepository(plans ...Plan) *MemoryRepository {
	r := &MemoryRepository{
		plans:         make(map[string]Plan, len(plans)),
		subscriptions: make(map[uuid.UUID]PlanSubscription),
		usage:         make(map[uuid.UUID]map[string]UsageRecord),
	}
	for _, p := range plans {
		r.plans[p.ID] = p.clone()
	}
	return r
}

func (r *MemoryRepository) FindPlan(_ context.Context, id string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	c := p.clone()
	return &c, nil
}

func (r *MemoryRepository) SavePlan(_ context.Context, plan *Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ID] = plan.clone()
	return nil
}

func (r *MemoryRepository) DeletePlan(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	p.DeletedAt = &at
	r.plans[id] = p
	return nil
}

func (r *MemoryRepository) FindActiveSubscription(_ context.Context, owner Owner, now time.Time) (*PlanSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *PlanSubscription
	for _, s := range r.subscriptions {
		if s.Owner != owner || !s.IsActiveAt(now) {
			continue
		}
		if found == nil || s.StartsOn.After(found.StartsOn) {
			found = s.clone()
		}
	}
	if found == nil {
		return nil, ErrSubscriptionNotFound
	}
	return found, nil
}

func (r *MemoryRepository) ListSubscriptions(_ context.Context, owner Owner) ([]PlanSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(owner), nil
}

func (r *MemoryRepository) listLocked(owner Owner) []PlanSubscription {
	subs := make([]PlanSubscription, 0)
	for _, s := range r.subscriptions {
		if s.Owner == owner {
			subs = append(subs, *s.clone())
		}
	}
	slices.SortFunc(subs, func(a, b PlanSubscription) int {
		return b.StartsOn.Compare(a.StartsOn)
	})
	return subs
}

func (r *MemoryRepository) GetSubscription(_ context.Context, id uuid.UUID) (*PlanSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.clone(), nil
}

func (r *MemoryRepository) SaveSubscription(_ context.Context, sub *PlanSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[sub.ID] = *sub.clone()
	return nil
}

func (r *MemoryRepository) DeleteSubscription(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscriptions[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(r.subscriptions, id)
	delete(r.usage, id)
	return nil
}

func (r *MemoryRepository) ListRenewalCandidates(_ context.Context, asOf time.Time) ([]Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[Owner]PlanSubscription)
	for _, s := range r.subscriptions {
		if cur, ok := latest[s.Owner]; !ok || s.StartsOn.After(cur.StartsOn) {
			latest[s.Owner] = s
		}
	}

	owners := make([]Owner, 0)
	for owner, s := range latest {
		if IsRenewalCandidate(&s, asOf) {
			owners = append(owners, owner)
		}
	}
	slices.SortFunc(owners, func(a, b Owner) int {
		return cmp.Compare(a.Key(), b.Key())
	})
	return owners, nil
}

func (r *MemoryRepository) FindUsage(_ context.Context, subscriptionID uuid.UUID, code string) (*UsageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.usage[subscriptionID][code]
	if !ok {
		return nil, ErrUsageNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) SaveUsage(_ context.Context, usage *UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscriptions[usage.SubscriptionID]; !ok {
		return ErrSubscriptionNotFound
	}
	if r.usage[usage.SubscriptionID] == nil {
		r.usage[usage.SubscriptionID] = make(map[string]UsageRecord)
	}
	r.usage[usage.SubscriptionID][usage.Code] = *usage
	return nil
}
