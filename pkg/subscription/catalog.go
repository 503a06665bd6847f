package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PlansSource defines how plan definitions are loaded into a Repository.
type PlansSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	mu    sync.RWMutex
	plans []Plan
}

// NewInMemSource returns an in-memory source with a deep copy of the given plans.
// Panics if no plans are provided to ensure a catalog always has at least one plan.
func NewInMemSource(plans ...Plan) PlansSource {
	if len(plans) < 1 {
		panic("subscription: at least one plan is required")
	}
	src := &inMemSource{plans: make([]Plan, 0, len(plans))}
	for _, p := range plans {
		src.plans = append(src.plans, p.clone())
	}
	return src
}

// Load returns a copy of all plans so callers cannot modify the source's state.
func (s *inMemSource) Load(context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p.clone())
	}
	return plans, nil
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Description     string        `yaml:"description"`
	Price           string        `yaml:"price"`
	Currency        string        `yaml:"currency"`
	DurationDays    int           `yaml:"duration_days"`
	ProviderPriceID string        `yaml:"provider_price_id"`
	Features        []yamlFeature `yaml:"features"`
}

type yamlFeature struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Kind        string `yaml:"kind"`
	Limit       int64  `yaml:"limit"`
}

// NewYAMLSource parses a plan catalog document:
//
//	plans:
//	  - id: pro
//	    name: Pro
//	    price: "19.00"
//	    currency: USD
//	    duration_days: 30
//	    features:
//	      - code: sso
//	        kind: feature
//	      - code: api_calls
//	        kind: limit
//	        limit: 10000
//
// Feature kind defaults to "feature" when omitted.
func NewYAMLSource(r io.Reader) (PlansSource, error) {
	var doc yamlCatalog
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans, errors.New("catalog has no plans"))
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for _, yp := range doc.Plans {
		p, err := yp.plan()
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		plans = append(plans, p)
	}
	return NewInMemSource(plans...), nil
}

func (yp yamlPlan) plan() (Plan, error) {
	price := Money{Amount: decimal.Zero, Currency: strings.ToUpper(yp.Currency)}
	if yp.Price != "" {
		amount, err := decimal.NewFromString(yp.Price)
		if err != nil {
			return Plan{}, fmt.Errorf("plan %s: price %q: %w", yp.ID, yp.Price, err)
		}
		price.Amount = amount
	}

	p := Plan{
		ID:              yp.ID,
		Name:            yp.Name,
		Description:     yp.Description,
		Price:           price,
		DurationDays:    yp.DurationDays,
		ProviderPriceID: yp.ProviderPriceID,
		Features:        make([]Feature, 0, len(yp.Features)),
	}
	for _, yf := range yp.Features {
		kind := FeatureKind(yf.Kind)
		if kind == "" {
			kind = FeatureKindFeature
		}
		p.Features = append(p.Features, Feature{
			PlanID:      yp.ID,
			Name:        yf.Name,
			Code:        yf.Code,
			Description: yf.Description,
			Kind:        kind,
			Limit:       yf.Limit,
		})
	}
	return p, nil
}

// SeedPlans validates every plan from src and saves it into repo.
// Missing feature IDs are generated; plan durations default to DefaultDurationDays.
func SeedPlans(ctx context.Context, repo Repository, src PlansSource) error {
	plans, err := src.Load(ctx)
	if err != nil {
		return errors.Join(ErrFailedToLoadPlans, err)
	}

	for i := range plans {
		p := &plans[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if p.DurationDays == 0 {
			p.DurationDays = DefaultDurationDays
		}
		for j := range p.Features {
			if p.Features[j].ID == uuid.Nil {
				p.Features[j].ID = uuid.New()
			}
			p.Features[j].PlanID = p.ID
		}
		if err := repo.SavePlan(ctx, p); err != nil {
			return fmt.Errorf("save plan %s: %w", p.ID, err)
		}
	}
	return nil
}
