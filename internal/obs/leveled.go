package obs

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// LeveledLogger adapts zerolog to the printf-style and variadic logger
// interfaces expected by the Stripe and asynq clients.
type LeveledLogger struct {
	Logger    zerolog.Logger
	Component string
}

func (l LeveledLogger) event(level zerolog.Level) *zerolog.Event {
	evt := l.Logger.WithLevel(level)
	if l.Component != "" {
		evt = evt.Str("component", l.Component)
	}
	return evt
}

// Debugf logs a formatted debug message.
func (l LeveledLogger) Debugf(format string, v ...interface{}) {
	l.event(zerolog.DebugLevel).Msgf(format, v...)
}

// Infof logs a formatted info message.
func (l LeveledLogger) Infof(format string, v ...interface{}) {
	l.event(zerolog.InfoLevel).Msgf(format, v...)
}

// Warnf logs a formatted warning.
func (l LeveledLogger) Warnf(format string, v ...interface{}) {
	l.event(zerolog.WarnLevel).Msgf(format, v...)
}

// Errorf logs a formatted error.
func (l LeveledLogger) Errorf(format string, v ...interface{}) {
	l.event(zerolog.ErrorLevel).Msgf(format, v...)
}

// Debug logs its arguments at debug level.
func (l LeveledLogger) Debug(args ...interface{}) {
	l.event(zerolog.DebugLevel).Msg(fmt.Sprint(args...))
}

// Info logs its arguments at info level.
func (l LeveledLogger) Info(args ...interface{}) {
	l.event(zerolog.InfoLevel).Msg(fmt.Sprint(args...))
}

// Warn logs its arguments at warn level.
func (l LeveledLogger) Warn(args ...interface{}) {
	l.event(zerolog.WarnLevel).Msg(fmt.Sprint(args...))
}

// Error logs its arguments at error level.
func (l LeveledLogger) Error(args ...interface{}) {
	l.event(zerolog.ErrorLevel).Msg(fmt.Sprint(args...))
}

// Fatal logs its arguments and exits the process.
func (l LeveledLogger) Fatal(args ...interface{}) {
	l.event(zerolog.FatalLevel).Msg(fmt.Sprint(args...))
	os.Exit(1)
}
