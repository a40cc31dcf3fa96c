package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/YuminosukeSato/advnet/pkg/errors"
)

// Output formats accepted by SetupLogger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatCloud   = "cloud"
)

// SetupLogger function setup logger.
// console and json write through zerolog, cloud writes Cloud Logging style
// JSON through slog. Warnings raised with errors.Warn are routed to the
// "warnings" component logger.
func SetupLogger(loglevel, format string) error {
	return SetupLoggerTo(os.Stderr, loglevel, format)
}

// SetupLoggerTo is SetupLogger with an explicit destination.
func SetupLoggerTo(w io.Writer, loglevel, format string) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case FormatConsole, "":
		SetProvider(NewZerologProvider(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level))
	case FormatJSON:
		SetProvider(NewZerologProvider(w, level))
	case FormatCloud:
		ops := slog.HandlerOptions{
			AddSource: true,
			Level:     slog.Level(level),
			// Replace attributes to convert to CloudLogging format.
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				switch attr.Key {
				case slog.LevelKey:
					attr = slog.Attr{
						Key:   "severity",
						Value: attr.Value,
					}
				case slog.MessageKey:
					attr = slog.Attr{
						Key:   "message",
						Value: attr.Value,
					}
				case slog.SourceKey:
					attr = slog.Attr{
						Key:   "logging.googleapis.com/sourceLocation",
						Value: attr.Value,
					}
				}
				return attr
			},
		}
		handler := slog.NewJSONHandler(w, &ops)
		errFmtHandler := WrapByErrFmtHandler(handler)
		slogger := slog.New(errFmtHandler)
		slog.SetDefault(slogger)
		SetProvider(NewSlogProvider(slogger))
	default:
		return perrors.NewConfigError("log_format", "must be one of console, json, cloud", format)
	}

	perrors.SetZerologWarnFunc(func(warning error) {
		GetLoggerWithName("warnings").Warn(warning.Error(), "warning", warning)
	})
	return nil
}

// ParseLevel converts a level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, perrors.NewConfigError("log_level", "must be one of debug, info, warn, error", level)
	}
}

// ToLogLevel converts a level name into a slog.Level. It panics on unknown names.
func ToLogLevel(level string) slog.Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
	return slog.Level(l)
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
	// ErrDetailsAttrKey holds the structured fields of a typed advnet error.
	ErrDetailsAttrKey = "error.details"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
