// Package logging builds the zerolog loggers used across peers, servers and
// the CLI.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "JSONRPC_PEER_LOG_LEVEL"
	EnvLogFormat    = "JSONRPC_PEER_LOG_FORMAT"
	EnvLogTimestamp = "JSONRPC_PEER_LOG_TIMESTAMP"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	Timestamp bool   `toml:"timestamp"`
}

func Default() Config {
	return Config{Level: "info", Format: FormatConsole, Timestamp: true}
}

// WithEnv returns cfg with the JSONRPC_PEER_LOG_* variables applied. Unset or
// unparsable variables leave the field alone.
func (cfg Config) WithEnv() Config {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		if _, ok := ParseLevel(v); ok {
			cfg.Level = v
		}
	}
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); v {
	case FormatConsole, FormatJSON:
		cfg.Format = v
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogTimestamp))); err == nil {
		cfg.Timestamp = v
	}
	return cfg
}

// ParseLevel maps a level name onto zerolog. Unknown names report false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "", "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// New builds a logger writing to w, or stderr when w is nil. app is attached
// as the "app" field when non-empty.
func New(cfg Config, app string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	level, _ := ParseLevel(cfg.Level)
	ctx := zerolog.New(w).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}
