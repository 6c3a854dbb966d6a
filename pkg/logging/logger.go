// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
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

// Component names used as the "component" field.
const (
	ComponentTransport  = "transport"
	ComponentGovernor   = "governor"
	ComponentArchive    = "archive"
	ComponentPagination = "pagination"
	ComponentGerrit     = "gerrit"
	ComponentMeetup     = "meetup"
	ComponentCLI        = "cli"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Sanitized query descriptors and archive keys
//   - Cursor moves and page requests
//   - Rate limit state updates
//
// Info: Normal operation events
//   - Fetch start and finish with item counts
//   - Pages received
//   - Sleeping until a quota reset
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Archive write failures (the fetch continues)
//   - Unparsable rate limit headers
//   - Skipped blacklisted items
//
// Error: Error conditions requiring attention
//   - Failed requests and commands (after retries)
//   - Quota exhausted with sleeping disabled
//   - Unknown groups, unsupported server versions
//
// Context Fields:
//   - component: one of the Component* names
//   - origin / group: the source being harvested
//   - method, url, cmd: sanitized request descriptor
//   - attempt, error_class, status_code: retry loop state
//   - remaining, reset_at, wait_duration: quota state
//   - partition, cursor, count: pagination progress
//   - run_id: archive run that recorded an entry
