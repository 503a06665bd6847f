// Package webhook delivers signed JSON events to HTTP endpoints.
//
// A Sender posts a payload, retries transient failures with exponential
// backoff (github.com/cenkalti/backoff/v4) and guards every endpoint host
// with a circuit breaker (github.com/sony/gobreaker). Answers in the 4xx
// range are permanent, except 408, 425 and 429.
//
//	sender := webhook.NewSender(
//	    webhook.WithSecret(secret),
//	    webhook.WithRetry(5, time.Second),
//	)
//	err := sender.Send(ctx, "https://example.com/hooks", "subscription.created", event)
//
// Deliveries carry X-Webhook-ID (stable across retries), X-Webhook-Event and,
// when a secret is set, X-Webhook-Signature and X-Webhook-Timestamp. The
// signature is hex HMAC-SHA256 over "timestamp.payload". Receivers check it
// with ParseSignature and Verify:
//
//	sig, err := webhook.ParseSignature(r.Header)
//	if err == nil {
//	    err = webhook.Verify(secret, body, sig, time.Now(), 5*time.Minute)
//	}
package webhook
