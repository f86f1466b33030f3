// Package log provides the structured, levelled logger used across the
// repository. It wraps zerolog and exposes printf-style and key-value
// helpers (the "w" variants).
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	// logTestWriterName is the output name that routes logs to logTestWriter.
	logTestWriterName = "test"
	// logTestTime is the fixed timestamp used by the test writer.
	logTestTime = "2006-01-02T15:04:05Z"
)

var (
	log      zerolog.Logger
	logLevel = LogLevelInfo

	// panicOnInvalidChars makes the logger panic when a message contains
	// invalid UTF-8, which zerolog renders as the � escape.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

	logTestWriter io.Writer
)

func init() {
	// Allow overriding the default log level via $LOG_LEVEL, so that the
	// environment variable can be set when running tests.
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = LogLevelError
	}
	Init(level, "stderr", nil)
}

// invalidCharChecker is a writer that panics if the encoded log line contains
// the replacement character escape.
type invalidCharChecker struct{}

var invalidChar = []byte("\\ufffd")

func (*invalidCharChecker) Write(p []byte) (int, error) {
	if bytes.Contains(p, invalidChar) {
		panic(fmt.Sprintf("log line contains invalid characters: %q", p))
	}
	return len(p), nil
}

// errorLevelWriter only forwards warn-or-higher entries to the wrapped writer.
type errorLevelWriter struct {
	io.Writer
}

func (w *errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Write(p)
}

// Init initializes the logger. Output can be stdout/stderr/filepath.
// If errorOutput is not nil, warn and error entries are also written there.
func Init(level, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	if output != logTestWriterName {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339Nano,
		}
	}
	outputs := []io.Writer{out}
	if errorOutput != nil {
		outputs = append(outputs, &errorLevelWriter{zerolog.ConsoleWriter{
			Out:        errorOutput,
			TimeFormat: time.RFC3339Nano,
			NoColor:    true,
		}})
	}
	if panicOnInvalidChars {
		outputs = append(outputs, &invalidCharChecker{})
	}
	if len(outputs) > 1 {
		out = zerolog.MultiLevelWriter(outputs...)
	}

	if output == logTestWriterName {
		zerolog.TimestampFunc = func() time.Time {
			t, _ := time.Parse(time.RFC3339, logTestTime)
			return t
		}
	}
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}
	log = zerolog.New(out).With().Timestamp().Caller().Logger()
	SetLevel(level)
	log.Debug().Msgf("logger construction succeeded at level %s with output %s", level, output)
}

// SetLevel sets the level of the logger.
func SetLevel(level string) {
	switch level {
	case LogLevelDebug:
		log = log.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		log = log.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		log = log.Level(zerolog.WarnLevel)
	case LogLevelError:
		log = log.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}
	logLevel = level
}

// Level returns the current log level.
func Level() string {
	return logLevel
}

// Logger provides access to the global logger (zerolog).
func Logger() *zerolog.Logger {
	return &log
}

// Debug sends a debug level log message.
func Debug(args ...any) {
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	log.Debug().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Info sends an info level log message.
func Info(args ...any) {
	log.Info().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Warn sends a warn level log message.
func Warn(args ...any) {
	log.Warn().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Error sends an error level log message.
func Error(args ...any) {
	log.Error().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

// Fatal sends a fatal level log message and exits.
func Fatal(args ...any) {
	log.Fatal().CallerSkipFrame(1).Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
}

// Debugf sends a formatted debug level log message.
func Debugf(template string, args ...any) {
	Logger().Debug().CallerSkipFrame(1).Msgf(template, args...)
}

// Infof sends a formatted info level log message.
func Infof(template string, args ...any) {
	Logger().Info().CallerSkipFrame(1).Msgf(template, args...)
}

// Warnf sends a formatted warn level log message.
func Warnf(template string, args ...any) {
	Logger().Warn().CallerSkipFrame(1).Msgf(template, args...)
}

// Errorf sends a formatted error level log message.
func Errorf(template string, args ...any) {
	Logger().Error().CallerSkipFrame(1).Msgf(template, args...)
}

// Fatalf sends a formatted fatal level log message and exits.
func Fatalf(template string, args ...any) {
	Logger().Fatal().CallerSkipFrame(1).Msgf(template+"\n"+string(debug.Stack()), args...)
}

// Debugw sends a debug level log message with key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().CallerSkipFrame(1).Fields(keyvalues).Msg(msg)
}

// Infow sends an info level log message with key-value pairs.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().CallerSkipFrame(1).Fields(keyvalues).Msg(msg)
}

// Warnw sends a warning level log message with key-value pairs.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().CallerSkipFrame(1).Fields(keyvalues).Msg(msg)
}

// Errorw sends an error level log message with the error and key-value pairs.
func Errorw(err error, msg string, keyvalues ...any) {
	Logger().Error().CallerSkipFrame(1).Err(err).Fields(keyvalues).Msg(msg)
}
