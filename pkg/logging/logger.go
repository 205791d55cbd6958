// Package logging provides the structured loggers used across the library.
//
// The library never touches process-global zerolog state: Setup configures a
// package-level base logger that component loggers derive from, so an
// embedding application keeps full control of its own logging.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// base is the logger component loggers derive from. Until Setup is called it
// writes JSON to stderr at info level.
var base = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)

// Setup configures the base logger. Call it once at startup, before
// constructing clients; loggers derived earlier keep their old settings.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	base = zerolog.New(output).With().Timestamp().Logger().Level(parseLevel(cfg.Level))
	return base
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Admission waits (window occupancy, computed delay)
//   - Chunk scheduling and completion
//   - Memoizer hits and bucket advances
//   - Pagination plan (offsets, total)
//
// Info: Normal operation events
//   - Successful login and session bootstrap
//   - Parallel fetch start/complete with page counts
//
// Warn: Warning conditions that don't prevent operation
//   - Chunk or page faults being drained before propagation
//   - Response cache errors (fallback to direct fetch)
//
// Error: Error conditions requiring attention
//   - Login failures and lockouts
//   - Terminal pipeline errors surfaced to the caller
//
// Context Fields:
//   - endpoint: broker endpoint path
//   - status_code: HTTP status code
//   - chunk: chunk index in the resolver pipeline
//   - offset: page offset in paginated queries
//   - wait: admission delay applied by the throttle
//   - fingerprint: credential fingerprint (hash, never the credentials)
