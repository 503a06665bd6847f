package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageRecord accumulates consumption of one metered feature within one subscription.
type UsageRecord struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	Code           string
	Used           decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func newUsageRecord(subscriptionID uuid.UUID, code string, now time.Time) *UsageRecord {
	return &UsageRecord{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		Code:           code,
		Used:           decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
