package webhook

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryInterval    = 500 * time.Millisecond
	DefaultBreakerFailures  = 5
	DefaultBreakerOpenDelay = 30 * time.Second
)

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient replaces the default client, e.g. for custom transports or tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithSecret enables HMAC-SHA256 request signing.
func WithSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets how many times a failed delivery is retried and the initial
// backoff interval. Zero retries sends once.
func WithRetry(maxRetries uint64, interval time.Duration) Option {
	return func(s *Sender) {
		s.maxRetries = maxRetries
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithCircuitBreaker opens an endpoint's circuit after failures consecutive
// failed attempts and probes it again after openDelay.
func WithCircuitBreaker(failures uint32, openDelay time.Duration) Option {
	return func(s *Sender) {
		if failures > 0 {
			s.breakerFailures = failures
		}
		if openDelay > 0 {
			s.breakerOpenDelay = openDelay
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConfig applies environment-driven settings.
func WithConfig(cfg Config) Option {
	return func(s *Sender) {
		WithSecret(cfg.Secret)(s)
		WithTimeout(cfg.Timeout)(s)
		WithRetry(cfg.MaxRetries, cfg.RetryInterval)(s)
		WithCircuitBreaker(cfg.BreakerFailures, cfg.BreakerOpenDelay)(s)
	}
}
