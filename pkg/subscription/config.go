package subscription

import (
	"time"

	"github.com/dmitrymomot/planskit/pkg/config"
	"github.com/dmitrymomot/planskit/pkg/webhook"
)

// Config holds engine settings loaded from the environment.
type Config struct {
	DefaultPlanID      string        `env:"SUBSCRIPTION_DEFAULT_PLAN_ID"`
	PlanCacheSize      int           `env:"SUBSCRIPTION_PLAN_CACHE_SIZE" envDefault:"128"`
	RenewalInterval    time.Duration `env:"SUBSCRIPTION_RENEWAL_INTERVAL" envDefault:"1h"`
	RenewalConcurrency int           `env:"SUBSCRIPTION_RENEWAL_CONCURRENCY" envDefault:"4"`
	LockTimeout        time.Duration `env:"SUBSCRIPTION_LOCK_TIMEOUT" envDefault:"10s"`

	Webhook webhook.Config
}

// LoadConfig reads Config from the environment (and a .env file, if present).
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
