package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache holds one parsed copy per configuration type.
type cache struct {
	mu     sync.Mutex
	values map[reflect.Type]any
}

var (
	globalCache = &cache{values: make(map[reflect.Type]any)}

	dotenvMu     sync.Mutex
	dotenvLoaded bool
)

// LoadEnv loads the given .env files (the default ".env" when none are given)
// into the process environment. Variables already set are not overridden.
// A missing default file is not an error; explicitly named files must exist.
func LoadEnv(files ...string) error {
	dotenvMu.Lock()
	defer dotenvMu.Unlock()

	dotenvLoaded = true
	if len(files) == 0 {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// MustLoadEnv works like LoadEnv but panics on failure.
func MustLoadEnv(files ...string) {
	if err := LoadEnv(files...); err != nil {
		panic(fmt.Sprintf("failed to load env files: %v", err))
	}
}

func loadDefaultEnv() {
	dotenvMu.Lock()
	defer dotenvMu.Unlock()
	if !dotenvLoaded {
		dotenvLoaded = true
		_ = godotenv.Load()
	}
}

// Load parses environment variables into v using `env` struct tags.
// Each configuration type is parsed once; later calls return the cached copy.
// The default .env file is loaded on first use.
//
//	type StoreConfig struct {
//		ConnURL string `env:"PG_CONN_URL,required"`
//	}
//
//	var cfg StoreConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDefaultEnv()

	key := reflect.TypeFor[T]()

	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()

	if cached, ok := globalCache.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	globalCache.values[key] = parsed
	*v = parsed
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Use it for settings the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ForceReload drops the cached copy of T and parses the environment again.
func ForceReload[T any](v *T) error {
	globalCache.mu.Lock()
	delete(globalCache.values, reflect.TypeFor[T]())
	globalCache.mu.Unlock()
	return Load(v)
}

// ResetCache forgets every cached configuration. Intended for tests.
func ResetCache() {
	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()
	clear(globalCache.values)
}
