package webhook

import "time"

// Config holds webhook delivery settings loaded from the environment.
// An empty URL disables delivery.
type Config struct {
	URL              string        `env:"SUBSCRIPTION_WEBHOOK_URL"`
	Secret           string        `env:"SUBSCRIPTION_WEBHOOK_SECRET"`
	Timeout          time.Duration `env:"SUBSCRIPTION_WEBHOOK_TIMEOUT" envDefault:"10s"`
	MaxRetries       uint64        `env:"SUBSCRIPTION_WEBHOOK_MAX_RETRIES" envDefault:"3"`
	RetryInterval    time.Duration `env:"SUBSCRIPTION_WEBHOOK_RETRY_INTERVAL" envDefault:"500ms"`
	BreakerFailures  uint32        `env:"SUBSCRIPTION_WEBHOOK_BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenDelay time.Duration `env:"SUBSCRIPTION_WEBHOOK_BREAKER_OPEN_DELAY" envDefault:"30s"`
}

// Enabled reports whether a delivery endpoint is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}
