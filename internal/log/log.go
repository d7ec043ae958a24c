// Package log provides structured, colored logging for the wallet tools.
// Logs go to stderr so command output on stdout stays machine-readable.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Wallet  zerolog.Logger
	Indexer zerolog.Logger
	Send    zerolog.Logger
	Storage zerolog.Logger
	Reserve zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration.
// When file is non-empty, logs are written to both stderr (colored or
// JSON depending on jsonOutput) and the file (always JSON for machine parsing).
func Init(level string, jsonOutput bool, file string) error {
	switch {
	case file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		var console io.Writer = os.Stderr
		if !jsonOutput {
			console = consoleWriter(os.Stderr)
		}
		Logger = newLogger(zerolog.MultiLevelWriter(console, f), level)
	case jsonOutput:
		Logger = NewJSONLogger(os.Stderr, level)
	default:
		Logger = NewConsoleLogger(os.Stderr, level)
	}

	initComponentLoggers()
	return nil
}

// SetOutput replaces the global logger with a JSON logger writing to w.
// Tests use it to capture log lines.
func SetOutput(w io.Writer, level string) {
	Logger = NewJSONLogger(w, level)
	initComponentLoggers()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to
// info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ValidLevel reports whether level is a name ParseLevel understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
		return true
	}
	return false
}

func initComponentLoggers() {
	Wallet = WithComponent("wallet")
	Indexer = WithComponent("indexer")
	Send = WithComponent("send")
	Storage = WithComponent("storage")
	Reserve = WithComponent("reserve")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Benchmark times an operation and logs its duration at debug level.
func Benchmark(logger zerolog.Logger, name string) func() {
	start := time.Now()
	return func() {
		logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
