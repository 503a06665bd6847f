// Package logger provides a context-aware wrapper around Go's slog package
// with functional options for configuration, domain attribute constructors,
// and transparent injection of values stored in context.Context.
//
// New builds a *slog.Logger from Option functions. The concrete handler
// (slog.NewTextHandler or slog.NewJSONHandler) is wrapped by LogHandlerDecorator,
// which runs every registered ContextExtractor before delegating.
//
// Attribute helpers (Subscriber, SubscriptionID, PlanID, Feature, Operation, Error)
// keep key names consistent across packages.
//
// # Usage
//
//	import "github.com/dmitrymomot/planskit/pkg/logger"
//
//	log := logger.New(
//		logger.WithProduction("billing"),
//		logger.WithContextExtractors(logger.SubscriberExtractor),
//	)
//
//	ctx = logger.WithSubscriber(ctx, owner.Key())
//	log.InfoContext(ctx, "subscription renewed", logger.PlanID("pro"))
//
// # Configuration
//
// Settings may come from the environment through Config (APP_NAME, APP_ENV,
// LOG_LEVEL, LOG_FORMAT) and FromConfig:
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log := logger.New(logger.FromConfig(cfg))
//
// WithDevelopment uses text output at debug level; WithStaging and WithProduction
// use JSON at info level. WithFormat panics on unknown formats so misconfiguration
// stops startup instead of surfacing at runtime.
package logger
