// Package slog defines the logging interface shared by elonbot packages along with its
// standard library and zap implementations
package slog

import (
	"fmt"
	"log"

	"go.uber.org/zap"
)

// SLogger is the elonbot internal logging interface. Components take an SLogger so that
// tests can capture output with a standard library logger while the binary logs with zap
type SLogger interface {
	Printf(format string, v ...interface{})

	Debugf(format string, v ...interface{})
}

type sLogger struct {
	logger *log.Logger
	debug  bool
}

// New creates a new SLogger provided with a standard library logger and a debug flag
func New(logger *log.Logger, debug bool) SLogger {
	sl := new(sLogger)
	sl.debug = debug
	sl.logger = logger
	return sl
}

// Debugf logs a debug line after checking if the logger is in debug mode
func (sl *sLogger) Debugf(format string, v ...interface{}) {
	if sl.debug {
		sl.logger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Printf logs a line by delegating the call to Output
func (sl *sLogger) Printf(format string, v ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf(format, v...))
}

type zapSLogger struct {
	sugared *zap.SugaredLogger
}

// NewZap wraps a zap logger as an SLogger. Printf logs at info level and Debugf at debug level
// so the zap level configuration decides what gets written
func NewZap(logger *zap.Logger) SLogger {
	return &zapSLogger{sugared: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Printf logs an info line
func (zl *zapSLogger) Printf(format string, v ...interface{}) {
	zl.sugared.Infof(format, v...)
}

// Debugf logs a debug line
func (zl *zapSLogger) Debugf(format string, v ...interface{}) {
	zl.sugared.Debugf(format, v...)
}

// Discard returns an SLogger that drops everything
func Discard() SLogger {
	return &zapSLogger{sugared: zap.NewNop().Sugar()}
}
