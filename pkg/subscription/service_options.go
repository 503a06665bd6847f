package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/planskit/pkg/clock"
)

// DefaultLockTimeout bounds how long an operation waits for the subscriber lock.
const DefaultLockTimeout = 10 * time.Second

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

func WithClock(c clock.Clock) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEventSink sets where lifecycle events are published. Combine several
// destinations with MultiSink.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLocker replaces the in-process locker, e.g. with a Redis or Postgres one
// when several processes share the repository.
func WithLocker(l Locker) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithCharger registers the charger for a payment method.
// Panics if the method is empty or already registered to prevent accidental
// overwrites and ensure explicit configuration.
func WithCharger(method string, c Charger) ServiceOption {
	return func(s *service) {
		if c == nil {
			return
		}
		if method == PaymentMethodManual {
			panic("subscription: charger payment method must not be empty")
		}
		if s.chargers == nil {
			s.chargers = make(map[string]Charger)
		}
		if _, exists := s.chargers[method]; exists {
			panic("subscription: charger for payment method " + method + " already registered")
		}
		s.chargers[method] = c
	}
}

// WithPaymentProfileResolver sets how subscriber payment profiles are resolved.
// Default resolver (PaymentProfileContextResolver) expects the profile in context.
func WithPaymentProfileResolver(resolver PaymentProfileResolver) ServiceOption {
	return func(s *service) {
		if resolver != nil {
			s.profiles = resolver
		}
	}
}

// WithDefaultPlan sets the plan used when an extension finds neither an active
// period nor a previously paid plan. Without it such extensions fail with ErrNoFallbackPlan.
func WithDefaultPlan(planID string) ServiceOption {
	return func(s *service) { s.defaultPlanID = planID }
}

// WithLockTimeout bounds subscriber lock acquisition. Zero waits for ctx only.
func WithLockTimeout(d time.Duration) ServiceOption {
	return func(s *service) {
		if d >= 0 {
			s.lockTimeout = d
		}
	}
}

// WithConfig applies the environment-driven settings.
func WithConfig(cfg Config) ServiceOption {
	return func(s *service) {
		if cfg.DefaultPlanID != "" {
			s.defaultPlanID = cfg.DefaultPlanID
		}
		if cfg.LockTimeout > 0 {
			s.lockTimeout = cfg.LockTimeout
		}
	}
}
