package webhook

import (
	"errors"
	"fmt"
)

var (
	ErrDeliveryFailed       = errors.New("webhook delivery failed")
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrPermanentFailure     = errors.New("permanent webhook failure")
	ErrCircuitOpen          = errors.New("webhook circuit breaker is open")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrInvalidURL           = errors.New("invalid webhook URL")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrSignatureExpired     = errors.New("webhook signature timestamp outside tolerance")
)

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook endpoint returned status %d", e.Code)
	}
	return fmt.Sprintf("webhook endpoint returned status %d: %s", e.Code, e.Body)
}

// IsCircuitOpen checks if an error indicates the circuit breaker is open
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
