// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bookshelf holds the service configuration shared by its binaries.
package bookshelf

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Users backends.
const (
	BackendStatic = "static"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the service configuration.
type Config struct {
	// HTTP API
	HTTPHost string `env:"HTTP_HOST" envDefault:""`
	HTTPPort string `env:"HTTP_PORT" envDefault:"3000"`

	// Admin server for metrics and health
	AdminEnabled bool   `env:"ADMIN_ENABLED" envDefault:"true"`
	AdminHost    string `env:"ADMIN_HOST"    envDefault:""`
	AdminPort    string `env:"ADMIN_PORT"    envDefault:"9090"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Pipeline
	ErrorMode       string        `env:"ERROR_MODE"        envDefault:"typed"`
	UnmatchedMode   string        `env:"UNMATCHED_MODE"    envDefault:"explicit"`
	BodyReadTimeout time.Duration `env:"BODY_READ_TIMEOUT" envDefault:"0s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"30s"`

	// Users
	UsersBackend string `env:"USERS_BACKEND" envDefault:"static"`
	Users        string `env:"USERS"         envDefault:""`
	UsersFile    string `env:"USERS_FILE"    envDefault:"users.yaml"`
	UsersWatch   bool   `env:"USERS_WATCH"   envDefault:"true"`
	UsersDB      string `env:"USERS_DB"      envDefault:"users.db"`

	// Circuit breaker around user lookups
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`
}

// NewConfig parses the configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}
	if c.AdminEnabled && c.AdminPort == "" {
		return fmt.Errorf("admin port is required when the admin server is enabled")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	switch strings.ToLower(c.ErrorMode) {
	case "typed", "leaky":
	default:
		return fmt.Errorf("unknown error mode %q", c.ErrorMode)
	}

	switch strings.ToLower(c.UnmatchedMode) {
	case "explicit", "silent":
	default:
		return fmt.Errorf("unknown unmatched mode %q", c.UnmatchedMode)
	}

	switch c.UsersBackend {
	case BackendStatic:
	case BackendFile:
		if c.UsersFile == "" {
			return fmt.Errorf("users file is required for the %s backend", BackendFile)
		}
	case BackendSQLite:
		if c.UsersDB == "" {
			return fmt.Errorf("users database is required for the %s backend", BackendSQLite)
		}
	default:
		return fmt.Errorf("unknown users backend %q", c.UsersBackend)
	}

	if c.BodyReadTimeout < 0 {
		return fmt.Errorf("body read timeout must not be negative")
	}
	if c.BreakerMaxFailures < 1 {
		return fmt.Errorf("breaker max failures must be at least 1")
	}

	return nil
}
