// Package config loads typed configuration from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for struct-tag parsing and
// github.com/joho/godotenv for .env files. Each configuration type is parsed
// once and cached for the lifetime of the process, so packages can call Load
// for their own settings without coordinating:
//
//	var cfg subscription.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// The default .env file in the working directory is read on first Load; call
// LoadEnv with explicit paths before that to use other files. ForceReload and
// ResetCache exist for tests that change the environment between cases.
package config
