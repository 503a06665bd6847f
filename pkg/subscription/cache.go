package subscription

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedRepository serves FindPlan from a bounded LRU cache.
// Plans are read on every lifecycle call and change rarely; plan writes through
// this wrapper invalidate the entry.
type CachedRepository struct {
	Repository
	plans *lru.Cache[string, Plan]
}

// NewCachedRepository wraps repo with a plan cache holding up to size plans.
func NewCachedRepository(repo Repository, size int) (*CachedRepository, error) {
	if size < 1 {
		size = 128
	}
	cache, err := lru.New[string, Plan](size)
	if err != nil {
		return nil, fmt.Errorf("create plan cache: %w", err)
	}
	return &CachedRepository{Repository: repo, plans: cache}, nil
}

func (r *CachedRepository) FindPlan(ctx context.Context, id string) (*Plan, error) {
	if p, ok := r.plans.Get(id); ok {
		c := p.clone()
		return &c, nil
	}

	p, err := r.Repository.FindPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	r.plans.Add(id, p.clone())
	return p, nil
}

func (r *CachedRepository) SavePlan(ctx context.Context, plan *Plan) error {
	r.plans.Remove(plan.ID)
	return r.Repository.SavePlan(ctx, plan)
}

func (r *CachedRepository) DeletePlan(ctx context.Context, id string, at time.Time) error {
	r.plans.Remove(id)
	return r.Repository.DeletePlan(ctx, id, at)
}
