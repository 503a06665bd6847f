package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanSubscription is one subscriber's bound period against a plan.
// The plan is referenced by id so an upgrade can swap it in place.
type PlanSubscription struct {
	ID                uuid.UUID
	PlanID            string
	Owner             Owner
	PaymentMethod     string // empty for manual subscriptions that never charge
	Active            bool   // true once payment, if required, has cleared
	ChargingPrice     decimal.Decimal
	ChargingCurrency  string
	IsRecurring       bool
	RecurringEachDays int
	StartsOn          time.Time
	ExpiresOn         time.Time
	CancelledOn       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// State is the derived lifecycle state of a single subscription row.
type State string

const (
	StatePending             State = "pending" // paid and queued, not started yet
	StateActive              State = "active"
	StateDue                 State = "due"
	StatePendingCancellation State = "pending_cancellation"
	StateCancelled           State = "cancelled"
	StateExpired             State = "expired"
)

// Charge returns the price snapshot this subscription bills.
func (s *PlanSubscription) Charge() Money {
	return Money{Amount: s.ChargingPrice, Currency: s.ChargingCurrency}
}

// IsCancelledAt reports whether a requested cancellation has taken effect.
func (s *PlanSubscription) IsCancelledAt(now time.Time) bool {
	return s.CancelledOn != nil && !now.Before(s.ExpiresOn)
}

// IsPendingCancellationAt reports whether cancellation was requested but access
// continues until expiry.
func (s *PlanSubscription) IsPendingCancellationAt(now time.Time) bool {
	return s.CancelledOn != nil && now.Before(s.ExpiresOn)
}

// IsUnpaid reports whether the row was created but its payment never cleared.
func (s *PlanSubscription) IsUnpaid() bool {
	return !s.Active && s.CancelledOn == nil
}

// IsActiveAt reports whether the subscription grants access at now.
// Pending cancellation keeps access until expiry.
func (s *PlanSubscription) IsActiveAt(now time.Time) bool {
	return s.InWindowAt(now) && s.Active && !s.IsCancelledAt(now)
}

// InWindowAt reports whether now falls in [StartsOn, ExpiresOn).
func (s *PlanSubscription) InWindowAt(now time.Time) bool {
	return !now.Before(s.StartsOn) && now.Before(s.ExpiresOn)
}

// StateAt derives the row state. Every lifecycle branch goes through this one function.
func (s *PlanSubscription) StateAt(now time.Time) State {
	switch {
	case s.IsPendingCancellationAt(now):
		return StatePendingCancellation
	case s.CancelledOn != nil:
		return StateCancelled
	case !s.Active:
		return StateDue
	case now.Before(s.StartsOn):
		return StatePending
	case !now.Before(s.ExpiresOn):
		return StateExpired
	default:
		return StateActive
	}
}

// DaysRemainingAt returns whole days left in the period, 0 once expired.
func (s *PlanSubscription) DaysRemainingAt(now time.Time) int {
	remaining := s.ExpiresOn.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

func (s *PlanSubscription) clone() *PlanSubscription {
	c := *s
	if s.CancelledOn != nil {
		t := *s.CancelledOn
		c.CancelledOn = &t
	}
	return &c
}

// SubscriberState is the lifecycle state of a subscriber across all its rows.
type SubscriberState string

const (
	SubscriberNone                SubscriberState = "none"
	SubscriberActive              SubscriberState = "active"
	SubscriberPendingCancellation SubscriberState = "pending_cancellation"
	SubscriberDue                 SubscriberState = "due"
	SubscriberCancelled           SubscriberState = "cancelled"
	SubscriberExpired             SubscriberState = "expired"
)

// SubscriberStateAt derives the subscriber state from its subscription rows.
func SubscriberStateAt(subs []PlanSubscription, now time.Time) SubscriberState {
	if len(subs) == 0 {
		return SubscriberNone
	}
	if active := activeAt(subs, now); active != nil {
		if active.IsPendingCancellationAt(now) {
			return SubscriberPendingCancellation
		}
		return SubscriberActive
	}
	if lastDue(subs) != nil {
		return SubscriberDue
	}
	if latest := latestStarted(subs, now); latest != nil && latest.CancelledOn != nil {
		return SubscriberCancelled
	}
	return SubscriberExpired
}

// activeAt returns the single row granting access at now, if any.
func activeAt(subs []PlanSubscription, now time.Time) *PlanSubscription {
	var found *PlanSubscription
	for i := range subs {
		if subs[i].IsActiveAt(now) && (found == nil || subs[i].StartsOn.After(found.StartsOn)) {
			found = &subs[i]
		}
	}
	return found
}

// lastPaid returns the most recent row whose payment cleared, cancelled or not.
func lastPaid(subs []PlanSubscription) *PlanSubscription {
	var found *PlanSubscription
	for i := range subs {
		if subs[i].Active && (found == nil || subs[i].StartsOn.After(found.StartsOn)) {
			found = &subs[i]
		}
	}
	return found
}

// lastKept returns the most recent paid row that was never cancelled.
func lastKept(subs []PlanSubscription) *PlanSubscription {
	var found *PlanSubscription
	for i := range subs {
		s := &subs[i]
		if s.Active && s.CancelledOn == nil && (found == nil || s.StartsOn.After(found.StartsOn)) {
			found = s
		}
	}
	return found
}

// lastDue returns the latest unpaid row that is newer than every paid row.
// An unpaid row superseded by a later paid period is no longer owed.
func lastDue(subs []PlanSubscription) *PlanSubscription {
	paid := lastPaid(subs)
	var found *PlanSubscription
	for i := range subs {
		s := &subs[i]
		if !s.IsUnpaid() {
			continue
		}
		if paid != nil && !s.StartsOn.After(paid.StartsOn) {
			continue
		}
		if found == nil || s.StartsOn.After(found.StartsOn) {
			found = s
		}
	}
	return found
}

// unpaidRows returns every row that is still owed.
func unpaidRows(subs []PlanSubscription) []*PlanSubscription {
	var rows []*PlanSubscription
	for i := range subs {
		if subs[i].IsUnpaid() {
			rows = append(rows, &subs[i])
		}
	}
	return rows
}

// latestStarted returns the row with the latest StartsOn that is not in the future.
func latestStarted(subs []PlanSubscription, now time.Time) *PlanSubscription {
	var found *PlanSubscription
	for i := range subs {
		if subs[i].StartsOn.After(now) {
			continue
		}
		if found == nil || subs[i].StartsOn.After(found.StartsOn) {
			found = &subs[i]
		}
	}
	return found
}

// queuedAfter returns non-cancelled rows that follow active in its chain.
func queuedAfter(subs []PlanSubscription, active *PlanSubscription) []*PlanSubscription {
	var rows []*PlanSubscription
	for i := range subs {
		s := &subs[i]
		if s.ID == active.ID || s.CancelledOn != nil {
			continue
		}
		if !s.StartsOn.Before(active.ExpiresOn) {
			rows = append(rows, s)
		}
	}
	return rows
}

// chainTail returns the row whose expiry ends the chain started by active.
func chainTail(subs []PlanSubscription, active *PlanSubscription) *PlanSubscription {
	tail := active
	for _, s := range queuedAfter(subs, active) {
		if s.ExpiresOn.After(tail.ExpiresOn) {
			tail = s
		}
	}
	return tail
}
