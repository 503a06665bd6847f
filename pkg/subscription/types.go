package subscription

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultDurationDays is the period length used when a plan does not declare one.
const DefaultDurationDays = 30

// Owner is a polymorphic reference to the subscriber: any host entity identified by
// a type tag and an id (e.g. "team", "42").
type Owner struct {
	Type string
	ID   string
}

// NewOwner builds an owner reference.
func NewOwner(ownerType, id string) Owner {
	return Owner{Type: ownerType, ID: id}
}

// Key returns the stable "type:id" form used for locking and indexing.
func (o Owner) Key() string {
	return o.Type + ":" + o.ID
}

func (o Owner) String() string {
	return o.Key()
}

func (o Owner) Validate() error {
	if strings.TrimSpace(o.Type) == "" || strings.TrimSpace(o.ID) == "" {
		return ErrInvalidOwner
	}
	return nil
}

// Money is a decimal amount in an ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney parses amount (e.g. "9.99") into Money.
func NewMoney(amount, code string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, errors.Join(ErrInvalidPrice, err)
	}
	m := Money{Amount: d, Currency: strings.ToUpper(code)}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// IsZero reports whether no money is involved; free plans may omit the currency.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) Validate() error {
	if m.Amount.IsNegative() {
		return ErrInvalidPrice
	}
	if m.Currency == "" && m.IsZero() {
		return nil
	}
	if _, err := currency.ParseISO(m.Currency); err != nil {
		return errors.Join(ErrInvalidCurrency, err)
	}
	return nil
}

func (m Money) String() string {
	if m.Currency == "" {
		return m.Amount.StringFixed(2)
	}
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// FeatureKind distinguishes boolean capabilities from metered limits.
type FeatureKind string

const (
	FeatureKindFeature FeatureKind = "feature"
	FeatureKindLimit   FeatureKind = "limit"
)

func (k FeatureKind) Valid() bool {
	return k == FeatureKindFeature || k == FeatureKindLimit
}

// UsageInfo contains the consumption of a metered feature against its limit.
type UsageInfo struct {
	Used      decimal.Decimal
	Limit     int64
	Remaining decimal.Decimal // zero when Unlimited
	Unlimited bool
}

func newUsageInfo(f Feature, used decimal.Decimal) UsageInfo {
	if f.IsUnlimited() {
		return UsageInfo{Used: used, Unlimited: true}
	}
	remaining := decimal.NewFromInt(f.Limit).Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return UsageInfo{Used: used, Limit: f.Limit, Remaining: remaining}
}
