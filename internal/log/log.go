// Package log provides the structured logging facade used across the
// engine, backed by logrus.
package log

import (
	"sync"
)

// Logger is the leveled, field-structured logging interface handed to
// engine components.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.Mutex
	logger Logger
)

// Init configures the global logger. Later calls are ignored.
func Init(cfg *LoggerConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return nil
	}
	l, err := newLogrusLogger(cfg)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// GetLogger returns the global logger, initialising a console logger at
// info level if Init was never called.
func GetLogger() Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		l, err := newLogrusLogger(DefaultConfig())
		if err != nil {
			panic(err)
		}
		logger = l
	}
	return logger
}
