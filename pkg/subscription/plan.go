package subscription

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Plan is a priced, timed offering composed of features.
// Soft-deleted plans stay resolvable for historical subscriptions but accept no new periods.
type Plan struct {
	ID              string
	Name            string
	Description     string
	Price           Money
	DurationDays    int
	ProviderPriceID string // catalog price reference at the payment provider, if any
	Features        []Feature
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Feature is a capability or metered limit attached to a plan.
type Feature struct {
	ID          uuid.UUID
	PlanID      string
	Name        string
	Code        string // unique within the plan
	Description string
	Kind        FeatureKind
	Limit       int64 // 0 means unlimited; only meaningful for FeatureKindLimit
}

func (f Feature) IsMetered() bool {
	return f.Kind == FeatureKindLimit
}

func (f Feature) IsUnlimited() bool {
	return f.Limit == 0
}

// Duration returns the plan period in days, falling back to DefaultDurationDays.
func (p Plan) Duration() int {
	if p.DurationDays < 1 {
		return DefaultDurationDays
	}
	return p.DurationDays
}

func (p Plan) IsDeleted() bool {
	return p.DeletedAt != nil
}

// FindFeature looks a feature up by its code.
func (p Plan) FindFeature(code string) (Feature, bool) {
	idx := slices.IndexFunc(p.Features, func(f Feature) bool { return f.Code == code })
	if idx < 0 {
		return Feature{}, false
	}
	return p.Features[idx], true
}

// Validate checks the plan definition before it is stored.
func (p Plan) Validate() error {
	if p.ID == "" {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("plan ID is required"))
	}
	if p.DurationDays < 0 {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %s: negative duration", p.ID))
	}
	if err := p.Price.Validate(); err != nil {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %s: %w", p.ID, err))
	}

	seen := make(map[string]struct{}, len(p.Features))
	for _, f := range p.Features {
		if f.Code == "" {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %s: feature code is required", p.ID))
		}
		if _, dup := seen[f.Code]; dup {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %s: duplicate feature code %q", p.ID, f.Code))
		}
		seen[f.Code] = struct{}{}

		if !f.Kind.Valid() {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %s: feature %s has unknown kind %q", p.ID, f.Code, f.Kind))
		}
		if f.Limit < 0 {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %s: feature %s has negative limit", p.ID, f.Code))
		}
	}
	return nil
}

func (p Plan) clone() Plan {
	c := p
	c.Features = slices.Clone(p.Features)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

// PlanComparison contains the differences between two plans.
// Carried on upgrade events so consumers can react to lost capabilities.
type PlanComparison struct {
	NewFeatures     []Feature
	LostFeatures    []Feature
	IncreasedLimits map[string]LimitChange
	DecreasedLimits map[string]LimitChange
}

// LimitChange represents a change in a metered feature limit.
type LimitChange struct {
	From int64
	To   int64
}

// HasLimitDecreases returns true if any limit shrank or a feature was lost.
func (c *PlanComparison) HasLimitDecreases() bool {
	return len(c.DecreasedLimits) > 0 || len(c.LostFeatures) > 0
}

// ComparePlans returns the differences between current and target plans.
func ComparePlans(current, target *Plan) *PlanComparison {
	if current == nil || target == nil {
		return nil
	}

	comparison := &PlanComparison{
		NewFeatures:     make([]Feature, 0),
		LostFeatures:    make([]Feature, 0),
		IncreasedLimits: make(map[string]LimitChange),
		DecreasedLimits: make(map[string]LimitChange),
	}

	for _, f := range target.Features {
		cur, ok := current.FindFeature(f.Code)
		if !ok {
			comparison.NewFeatures = append(comparison.NewFeatures, f)
			continue
		}
		if !f.IsMetered() || !cur.IsMetered() || f.Limit == cur.Limit {
			continue
		}

		change := LimitChange{From: cur.Limit, To: f.Limit}
		// Unlimited-to-limited is a decrease even though the number grows.
		switch {
		case cur.IsUnlimited():
			comparison.DecreasedLimits[f.Code] = change
		case f.IsUnlimited(), f.Limit > cur.Limit:
			comparison.IncreasedLimits[f.Code] = change
		default:
			comparison.DecreasedLimits[f.Code] = change
		}
	}

	for _, f := range current.Features {
		if _, ok := target.FindFeature(f.Code); !ok {
			comparison.LostFeatures = append(comparison.LostFeatures, f)
		}
	}

	return comparison
}
