// Package config loads typed configuration from environment variables using
// github.com/caarlos0/env/v11, reading .env files with github.com/joho/godotenv.
//
// Load caches one parsed value per configuration type, so every package can
// call it for its own Config struct without re-parsing. Apply parses over a
// prefilled value without caching, for configuration whose defaults are set
// in code (such as per-channel rate limits). ResetCache and ForceReload exist
// for tests.
package config
