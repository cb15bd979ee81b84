package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = newLogger("info", "console")
}

// Configure sets the global log level and output format.
// Level is one of trace, debug, info, warn, error; format is console or json.
func Configure(level, format string) {
	logger = newLogger(level, format)
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return l.Level(lvl).With().Timestamp().Logger()
}

// Trace logs a message at trace level with key/value pairs.
func Trace(msg string, kv ...any) {
	emit(logger.Trace(), msg, kv)
}

// Debug logs a message at debug level with key/value pairs.
func Debug(msg string, kv ...any) {
	emit(logger.Debug(), msg, kv)
}

// Info logs a message at info level with key/value pairs.
func Info(msg string, kv ...any) {
	emit(logger.Info(), msg, kv)
}

// Warn logs a message at warn level with key/value pairs.
func Warn(msg string, kv ...any) {
	emit(logger.Warn(), msg, kv)
}

// Error logs a message at error level with key/value pairs.
func Error(msg string, kv ...any) {
	emit(logger.Error(), msg, kv)
}

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
