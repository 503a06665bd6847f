package mongostore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/planskit/pkg/subscription"
)

type planModel struct {
	ID              string          `bson:"_id"`
	Name            string          `bson:"name"`
	Description     string          `bson:"description"`
	Price           bson.Decimal128 `bson:"price"`
	Currency        string          `bson:"currency,omitempty"`
	DurationDays    int             `bson:"duration_days"`
	ProviderPriceID string          `bson:"provider_price_id,omitempty"`
	Features        []featureModel  `bson:"features"`
	DeletedAt       *time.Time      `bson:"deleted_at,omitempty"`
	CreatedAt       time.Time       `bson:"created_at"`
	UpdatedAt       time.Time       `bson:"updated_at"`
}

type featureModel struct {
	ID          string `bson:"id"`
	Name        string `bson:"name"`
	Code        string `bson:"code"`
	Description string `bson:"description,omitempty"`
	Kind        string `bson:"kind"`
	Limit       int64  `bson:"limit"`
}

type subscriptionModel struct {
	ID                string          `bson:"_id"`
	PlanID            string          `bson:"plan_id"`
	OwnerType         string          `bson:"owner_type"`
	OwnerID           string          `bson:"owner_id"`
	PaymentMethod     string          `bson:"payment_method"`
	Active            bool            `bson:"active"`
	ChargingPrice     bson.Decimal128 `bson:"charging_price"`
	ChargingCurrency  string          `bson:"charging_currency,omitempty"`
	IsRecurring       bool            `bson:"is_recurring"`
	RecurringEachDays int             `bson:"recurring_each_days"`
	StartsOn          time.Time       `bson:"starts_on"`
	ExpiresOn         time.Time       `bson:"expires_on"`
	CancelledOn       *time.Time      `bson:"cancelled_on"`
	CreatedAt         time.Time       `bson:"created_at"`
	UpdatedAt         time.Time       `bson:"updated_at"`
}

type usageModel struct {
	ID             string          `bson:"_id"`
	SubscriptionID string          `bson:"subscription_id"`
	Code           string          `bson:"code"`
	Used           bson.Decimal128 `bson:"used"`
	CreatedAt      time.Time       `bson:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v bson.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode decimal %s: %w", v, err)
	}
	return d, nil
}

func toPlanModel(p *subscription.Plan) (*planModel, error) {
	price, err := toDecimal128(p.Price.Amount)
	if err != nil {
		return nil, err
	}
	features := make([]featureModel, len(p.Features))
	for i, f := range p.Features {
		features[i] = featureModel{
			ID:          f.ID.String(),
			Name:        f.Name,
			Code:        f.Code,
			Description: f.Description,
			Kind:        string(f.Kind),
			Limit:       f.Limit,
		}
	}
	return &planModel{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           price,
		Currency:        p.Price.Currency,
		DurationDays:    p.Duration(),
		ProviderPriceID: p.ProviderPriceID,
		Features:        features,
		DeletedAt:       p.DeletedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}, nil
}

func fromPlanModel(m *planModel) (*subscription.Plan, error) {
	amount, err := fromDecimal128(m.Price)
	if err != nil {
		return nil, err
	}
	features := make([]subscription.Feature, len(m.Features))
	for i, f := range m.Features {
		id, err := uuid.Parse(f.ID)
		if err != nil {
			return nil, fmt.Errorf("decode feature id: %w", err)
		}
		features[i] = subscription.Feature{
			ID:          id,
			PlanID:      m.ID,
			Name:        f.Name,
			Code:        f.Code,
			Description: f.Description,
			Kind:        subscription.FeatureKind(f.Kind),
			Limit:       f.Limit,
		}
	}
	return &subscription.Plan{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		Price:           subscription.Money{Amount: amount, Currency: m.Currency},
		DurationDays:    m.DurationDays,
		ProviderPriceID: m.ProviderPriceID,
		Features:        features,
		DeletedAt:       m.DeletedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}, nil
}

func toSubscriptionModel(s *subscription.PlanSubscription) (*subscriptionModel, error) {
	price, err := toDecimal128(s.ChargingPrice)
	if err != nil {
		return nil, err
	}
	return &subscriptionModel{
		ID:                s.ID.String(),
		PlanID:            s.PlanID,
		OwnerType:         s.Owner.Type,
		OwnerID:           s.Owner.ID,
		PaymentMethod:     s.PaymentMethod,
		Active:            s.Active,
		ChargingPrice:     price,
		ChargingCurrency:  s.ChargingCurrency,
		IsRecurring:       s.IsRecurring,
		RecurringEachDays: s.RecurringEachDays,
		StartsOn:          s.StartsOn,
		ExpiresOn:         s.ExpiresOn,
		CancelledOn:       s.CancelledOn,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}, nil
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.PlanSubscription, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("decode subscription id: %w", err)
	}
	price, err := fromDecimal128(m.ChargingPrice)
	if err != nil {
		return nil, err
	}
	return &subscription.PlanSubscription{
		ID:                id,
		PlanID:            m.PlanID,
		Owner:             subscription.NewOwner(m.OwnerType, m.OwnerID),
		PaymentMethod:     m.PaymentMethod,
		Active:            m.Active,
		ChargingPrice:     price,
		ChargingCurrency:  m.ChargingCurrency,
		IsRecurring:       m.IsRecurring,
		RecurringEachDays: m.RecurringEachDays,
		StartsOn:          m.StartsOn,
		ExpiresOn:         m.ExpiresOn,
		CancelledOn:       m.CancelledOn,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func toUsageModel(u *subscription.UsageRecord) (*usageModel, error) {
	used, err := toDecimal128(u.Used)
	if err != nil {
		return nil, err
	}
	return &usageModel{
		ID:             u.ID.String(),
		SubscriptionID: u.SubscriptionID.String(),
		Code:           u.Code,
		Used:           used,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}, nil
}

func fromUsageModel(m *usageModel) (*subscription.UsageRecord, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("decode usage id: %w", err)
	}
	subID, err := uuid.Parse(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("decode usage subscription id: %w", err)
	}
	used, err := fromDecimal128(m.Used)
	if err != nil {
		return nil, err
	}
	return &subscription.UsageRecord{
		ID:             id,
		SubscriptionID: subID,
		Code:           m.Code,
		Used:           used,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}
