package logx

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Log is the shared logger used throughout the project. Every entry
// carries the service name so gateway logs are attributable when
// aggregated with other services.
var Log = newLogger()

// Configure sets the global log level. The level string is tolerant
// of case and common synonyms.
func Configure(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// newLogger emits human-readable console output on a terminal and
// JSON otherwise, so piped and collected logs stay machine-parseable.
func newLogger() zerolog.Logger {
	return loggerTo(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
}

func loggerTo(w io.Writer, tty bool) zerolog.Logger {
	out := zerolog.New(w)
	if tty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: w})
	}
	return out.With().Timestamp().Str("service", "aisopod").Logger()
}

// parseLevel converts a string to a zerolog level.
// Accepts: all, debug, info, warn, warning, error, fatal, none.
// Unknown values default to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
