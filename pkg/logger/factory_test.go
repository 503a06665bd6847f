package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates JSON logger", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text formatter option", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithTextFormatter())
		log.Info("hello")
		assert.Contains(t, buf.String(), "level=INFO")
	})

	t.Run("includes default attributes", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "test")))
		log.Info("msg")
		assert.Equal(t, "test", decode(t, buf)["svc"])
	})

	t.Run("extracts subscriber from context", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextExtractors(logger.SubscriberExtractor))
		ctx := logger.WithSubscriber(context.Background(), "team:7")
		log.InfoContext(ctx, "renewed")
		assert.Equal(t, "team:7", decode(t, buf)["subscriber"])
	})

	t.Run("context value option", func(t *testing.T) {
		t.Parallel()
		type key struct{}
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextValue("trace", key{}))
		log.InfoContext(context.WithValue(context.Background(), key{}, "abc"), "msg")
		assert.Equal(t, "abc", decode(t, buf)["trace"])
	})
}

func TestEnvironments(t *testing.T) {
	t.Parallel()

	t.Run("development", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithDevelopment("svc"), logger.WithOutput(buf))
		log.Debug("msg")
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "env=development")
	})

	t.Run("production", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithProduction("svc"), logger.WithOutput(buf))
		log.Debug("hidden")
		log.Info("msg")
		entry := decode(t, buf)
		assert.Equal(t, "svc", entry["service"])
		assert.Equal(t, "production", entry["env"])
	})

	t.Run("aliases", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, logger.Production, logger.ParseEnvironment("prod"))
		assert.Equal(t, logger.Staging, logger.ParseEnvironment(" Stage "))
		assert.Equal(t, logger.Development, logger.ParseEnvironment("whatever"))
	})
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("overrides level and format", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.FromConfig(logger.Config{Service: "svc", Environment: "production", Level: "warn", Format: "TEXT"}),
		)
		log.Info("hidden")
		log.Warn("shown")
		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "level=WARN")
		assert.Contains(t, out, "service=svc")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.New(logger.FromConfig(logger.Config{Service: "svc", Format: "xml"}))
		})
	})
}

func TestSetAsDefault(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger.SetAsDefault(logger.New(logger.WithOutput(buf)))
	slog.Info("default")
	assert.Equal(t, "default", decode(t, buf)["msg"])
}
