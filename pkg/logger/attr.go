package logger

import (
	"fmt"
	"log/slog"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Subscriber records the subscriber key ("type:id") under the key "subscriber".
func Subscriber(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("subscriber", key)
}

// SubscriptionID records a subscription identifier under the key "subscription_id".
// Accepts any fmt.Stringer (uuid.UUID) or string; nil returns an empty Attr.
func SubscriptionID(id any) slog.Attr {
	return idAttr("subscription_id", id)
}

// PlanID records the plan identifier under the key "plan_id".
func PlanID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("plan_id", id)
}

// Feature records a feature code under the key "feature".
func Feature(code string) slog.Attr {
	return slog.String("feature", code)
}

// Operation records the lifecycle operation under the key "operation".
func Operation(name string) slog.Attr {
	return slog.String("operation", name)
}

// PaymentMethod records the payment method tag under the key "payment_method".
func PaymentMethod(method string) slog.Attr {
	if method == "" {
		return slog.String("payment_method", "manual")
	}
	return slog.String("payment_method", method)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func idAttr(key string, id any) slog.Attr {
	switch v := id.(type) {
	case nil:
		return slog.Attr{}
	case string:
		return slog.String(key, v)
	case fmt.Stringer:
		return slog.String(key, v.String())
	default:
		return slog.Any(key, v)
	}
}
