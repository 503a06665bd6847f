package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentMethodManual tags subscriptions settled outside the engine; it never charges.
const PaymentMethodManual = ""

// PaymentProfile describes how a subscriber pays.
type PaymentProfile struct {
	Method           string // registered charger name, e.g. "stripe"; empty means manual
	CustomerRef      string // customer id at the provider
	PaymentMethodRef string // stored card/mandate id at the provider
}

// ChargeRequest is what the engine asks a Charger to collect.
type ChargeRequest struct {
	Owner          Owner
	SubscriptionID uuid.UUID
	PlanID         string
	PriceRef       string // plan's ProviderPriceID
	Amount         Money
	Profile        PaymentProfile
}

// ChargeReceipt acknowledges a successful charge.
type ChargeReceipt struct {
	Reference string // provider's payment/transaction id
	Amount    Money
	ChargedAt time.Time
}

// Charger collects a payment for a subscription period.
// Declines must wrap ErrChargeDeclined; any other error is treated as an
// infrastructure fault and propagated. Timeouts are the caller's context.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeReceipt, error)
}

// ChargerFunc adapts a function to the Charger interface.
type ChargerFunc func(ctx context.Context, req ChargeRequest) (*ChargeReceipt, error)

func (f ChargerFunc) Charge(ctx context.Context, req ChargeRequest) (*ChargeReceipt, error) {
	return f(ctx, req)
}
