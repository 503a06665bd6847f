package subscription

import (
	"context"
)

type paymentProfileCtxKey struct{}

func SetPaymentProfileToContext(ctx context.Context, profile PaymentProfile) context.Context {
	return context.WithValue(ctx, paymentProfileCtxKey{}, profile)
}

func GetPaymentProfileFromContext(ctx context.Context) (PaymentProfile, bool) {
	profile, ok := ctx.Value(paymentProfileCtxKey{}).(PaymentProfile)
	return profile, ok
}

// PaymentProfileResolver resolves how a subscriber pays.
type PaymentProfileResolver func(ctx context.Context, owner Owner) (PaymentProfile, error)

// PaymentProfileContextResolver is the default resolver that reads the profile from context.
// A missing profile resolves to a manual subscription, so the host application only sets
// one during request processing for subscribers that pay through a provider.
func PaymentProfileContextResolver(ctx context.Context, _ Owner) (PaymentProfile, error) {
	profile, _ := GetPaymentProfileFromContext(ctx)
	return profile, nil
}
