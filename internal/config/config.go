// Package config holds the process settings for pollkv.
//
// The only externally settable value is the verbosity, read from the DEBUG
// environment variable as an integer. Everything else is a fixed default.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// Error is the class of configuration errors.
var Error = errs.Class("config")

// Defaults for the fixed settings.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 6379
	DefaultPollTimeout   = time.Second
	DefaultStatsInterval = 10 * time.Second
)

// Config is the process configuration.
type Config struct {
	Host          string        // IPv4 address to bind
	Port          int           // TCP port to listen on
	LogLevel      int           // verbosity: 0 info, 1 debug, 3 and up per-I/O tracing
	PollTimeout   time.Duration // bound on a single readiness wait
	StatsInterval time.Duration // how often stats are logged at debug level
}

// Default returns the fixed defaults with a zero verbosity.
func Default() Config {
	return Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		PollTimeout:   DefaultPollTimeout,
		StatsInterval: DefaultStatsInterval,
	}
}

// Load returns the defaults with the verbosity taken from DEBUG. An absent
// or unparsable value is zero.
func Load() Config {
	cfg := Default()
	cfg.LogLevel = parseLevel(os.Getenv("DEBUG"))
	return cfg
}

func parseLevel(s string) int {
	level, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return level
}

// Trace reports if per-I/O tracing is enabled.
func (c Config) Trace() bool { return c.LogLevel >= 3 }

// Validate checks that the configuration can be served.
func (c Config) Validate() error {
	if c.Host == "" {
		return Error.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return Error.New("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollTimeout <= 0 {
		return Error.New("poll timeout must be positive, got %v", c.PollTimeout)
	}
	if c.StatsInterval < 0 {
		return Error.New("stats interval cannot be negative, got %v", c.StatsInterval)
	}
	return nil
}
