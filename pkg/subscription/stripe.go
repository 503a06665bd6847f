package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"golang.org/x/text/currency"
)

// StripeConfig holds configuration for the Stripe charger.
type StripeConfig struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
}

type paymentIntentCreator interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
}

// StripeCharger charges the subscriber's saved payment method off-session
// with a confirmed PaymentIntent.
type StripeCharger struct {
	intents paymentIntentCreator
	now     func() time.Time
}

// NewStripeCharger creates a Stripe charger.
func NewStripeCharger(cfg StripeConfig) (*StripeCharger, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := stripe.NewClient(cfg.SecretKey, nil)
	return newStripeCharger(client.V1PaymentIntents), nil
}

func newStripeCharger(intents paymentIntentCreator) *StripeCharger {
	return &StripeCharger{intents: intents, now: func() time.Time { return time.Now().UTC() }}
}

func (c *StripeCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeReceipt, error) {
	if req.Profile.CustomerRef == "" {
		return nil, ErrMissingProviderCustomerID
	}
	amount, err := minorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:     stripe.Int64(amount),
		Currency:   stripe.String(strings.ToLower(req.Amount.Currency)),
		Customer:   stripe.String(req.Profile.CustomerRef),
		OffSession: stripe.Bool(true),
		Confirm:    stripe.Bool(true),
		Metadata: map[string]string{
			"subscription_id": req.SubscriptionID.String(),
			"plan_id":         req.PlanID,
			"owner_type":      req.Owner.Type,
			"owner_id":        req.Owner.ID,
		},
	}
	if req.Profile.PaymentMethodRef != "" {
		params.PaymentMethod = stripe.String(req.Profile.PaymentMethodRef)
	}
	// Retried charges for the same period must not double-bill.
	params.SetIdempotencyKey("planskit-" + req.SubscriptionID.String() + "-" + req.Amount.Amount.String())

	intent, err := c.intents.Create(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			switch stripeErr.Code {
			case stripe.ErrorCodeCardDeclined, stripe.ErrorCodeAuthenticationRequired, stripe.ErrorCodeExpiredCard:
				return nil, errors.Join(ErrChargeDeclined, err)
			}
		}
		return nil, fmt.Errorf("failed to create stripe payment intent: %w", err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, errors.Join(ErrChargeDeclined, fmt.Errorf("stripe payment intent %s is %s", intent.ID, intent.Status))
	}

	return &ChargeReceipt{
		Reference: intent.ID,
		Amount:    req.Amount,
		ChargedAt: c.now(),
	}, nil
}

// minorUnits converts money into the currency's smallest unit (cents for USD, yen for JPY).
func minorUnits(m Money) (int64, error) {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return 0, errors.Join(ErrInvalidCurrency, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return m.Amount.Shift(int32(scale)).Round(0).IntPart(), nil
}
