package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/dmitrymomot/planskit/pkg/logger"
)

const userAgent = "planskit-webhook/1.0"

// Sender delivers JSON events over HTTP POST. Failed attempts are retried with
// exponential backoff; each endpoint host has its own circuit breaker.
// Zero value is not usable; use NewSender to create instances.
type Sender struct {
	client           *http.Client
	secret           string
	timeout          time.Duration
	maxRetries       uint64
	interval         time.Duration
	breakerFailures  uint32
	breakerOpenDelay time.Duration
	log              *slog.Logger
	now              func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewSender creates a sender with pooled connections.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:          DefaultTimeout,
		maxRetries:       DefaultMaxRetries,
		interval:         DefaultRetryInterval,
		breakerFailures:  DefaultBreakerFailures,
		breakerOpenDelay: DefaultBreakerOpenDelay,
		log:              slog.New(slog.DiscardHandler),
		now:              time.Now,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data to JSON and posts it to endpoint. Every attempt carries
// the same delivery id so receivers can drop duplicates. 4xx answers other
// than 408, 425 and 429 are permanent and not retried.
func (s *Sender) Send(ctx context.Context, endpoint, eventType string, data any) error {
	u, err := validateURL(endpoint)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}

	breaker := s.breaker(u.Host)
	id := uuid.NewString()
	attempts := 0

	err = backoff.Retry(func() error {
		attempts++
		_, err := breaker.Execute(func() (any, error) {
			return nil, s.deliver(ctx, endpoint, eventType, id, payload)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(errors.Join(ErrCircuitOpen, err))
		case errors.Is(err, ErrPermanentFailure):
			return backoff.Permanent(err)
		}
		s.log.DebugContext(ctx, "webhook attempt failed",
			logger.EventType(eventType), logger.RetryCount(attempts-1), logger.Error(err))
		return err
	}, s.policy(ctx))
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrPermanentFailure) || errors.Is(err, ErrCircuitOpen) {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, attempts, err)
}

func (s *Sender) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval
	return backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx)
}

func (s *Sender) breaker(host string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[host]; ok {
		return cb
	}
	failures := s.breakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     s.breakerOpenDelay,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// A rejected payload proves the endpoint is up.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPermanentFailure)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("webhook circuit state changed",
				logger.Component("webhook"), slog.String("host", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	s.breakers[host] = cb
	return cb
}

func (s *Sender) deliver(ctx context.Context, endpoint, eventType, id string, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrPermanentFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderID, id)
	if eventType != "" {
		req.Header.Set(HeaderEvent, eventType)
	}
	if s.secret != "" {
		sig, err := Sign(s.secret, payload, s.now())
		if err != nil {
			return errors.Join(ErrPermanentFailure, err)
		}
		sig.Apply(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	statusErr := &StatusError{Code: resp.StatusCode, Body: sanitize(body)}
	if permanentStatus(resp.StatusCode) {
		return errors.Join(ErrPermanentFailure, statusErr)
	}
	return statusErr
}

func validateURL(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return u, nil
}

func permanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

// sanitize flattens a response body for logging.
func sanitize(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
