package subscription

// OpOption tunes a single lifecycle call.
type OpOption func(*opConfig)

type opConfig struct {
	recurring     bool
	paymentMethod *string
	price         *Money
}

func newOpConfig(opts []OpOption) opConfig {
	cfg := opConfig{recurring: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithRecurring controls auto-renewal of the created period (default true).
func WithRecurring(recurring bool) OpOption {
	return func(c *opConfig) { c.recurring = recurring }
}

// WithPaymentMethod overrides the resolved payment method. Pass
// PaymentMethodManual to create a period that never charges.
func WithPaymentMethod(method string) OpOption {
	return func(c *opConfig) { c.paymentMethod = &method }
}

// WithChargingPrice overrides the plan price snapshot for the created period.
func WithChargingPrice(price Money) OpOption {
	return func(c *opConfig) { c.price = &price }
}

func (c opConfig) validate() error {
	if c.price != nil {
		return c.price.Validate()
	}
	return nil
}
