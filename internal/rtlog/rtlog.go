// Package rtlog provides the leveled-logger indirection used throughout the
// runtime. The core never imports a concrete logging backend directly; a
// host application supplies a Logger, or the runtime falls back to a no-op.
package rtlog

import "go.uber.org/zap"

// Logger is the narrow interface every package in this module logs through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noop struct{}

func (noop) Debugf(string, ...interface{}) {}
func (noop) Infof(string, ...interface{})  {}
func (noop) Warnf(string, ...interface{})  {}
func (noop) Errorf(string, ...interface{}) {}

var global Logger = noop{}

// SetLogger installs the logger used by the whole module. Not safe to call
// concurrently with logging calls; intended to be set once at startup.
func SetLogger(l Logger) {
	if l == nil {
		l = noop{}
	}
	global = l
}

// NewZap wraps a *zap.SugaredLogger as a Logger.
func NewZap(z *zap.SugaredLogger) Logger {
	return zapLogger{z}
}

type zapLogger struct{ s *zap.SugaredLogger }

func (z zapLogger) Debugf(format string, args ...interface{}) { z.s.Debugf(format, args...) }
func (z zapLogger) Infof(format string, args ...interface{})  { z.s.Infof(format, args...) }
func (z zapLogger) Warnf(format string, args ...interface{})  { z.s.Warnf(format, args...) }
func (z zapLogger) Errorf(format string, args ...interface{}) { z.s.Errorf(format, args...) }

// Debugf logs through the installed global Logger.
func Debugf(format string, args ...interface{}) { global.Debugf(format, args...) }

// Infof logs through the installed global Logger.
func Infof(format string, args ...interface{}) { global.Infof(format, args...) }

// Warnf logs through the installed global Logger.
func Warnf(format string, args ...interface{}) { global.Warnf(format, args...) }

// Errorf logs through the installed global Logger.
func Errorf(format string, args ...interface{}) { global.Errorf(format, args...) }
