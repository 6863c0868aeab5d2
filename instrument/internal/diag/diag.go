// Package diag routes instrumentation diagnostics to a zap logger.
//
// Warnings are always emitted. Info messages need Verbose or Debug, debug
// messages need Debug.
package diag

import "go.uber.org/zap"

// Sink applies the verbosity mask in front of a logger.
type Sink struct {
	log     *zap.Logger
	verbose bool
	debug   bool
}

// New creates a sink. A nil logger discards everything.
func New(l *zap.Logger, verbose, debug bool) *Sink {
	if l == nil {
		l = zap.NewNop()
	}
	return &Sink{log: l, verbose: verbose, debug: debug}
}

// Nop returns a sink that discards everything.
func Nop() *Sink {
	return New(nil, false, false)
}

// With returns a sink that adds fields to every message.
func (s *Sink) With(fields ...zap.Field) *Sink {
	c := *s
	c.log = s.log.With(fields...)
	return &c
}

// IsDebug reports whether debug messages are emitted.
func (s *Sink) IsDebug() bool { return s.debug }

// Warn is always emitted.
func (s *Sink) Warn(msg string, fields ...zap.Field) {
	s.log.Warn(msg, fields...)
}

// Info is emitted in verbose or debug mode.
func (s *Sink) Info(msg string, fields ...zap.Field) {
	if s.verbose || s.debug {
		s.log.Info(msg, fields...)
	}
}

// Debug is emitted in debug mode only.
func (s *Sink) Debug(msg string, fields ...zap.Field) {
	if s.debug {
		s.log.Debug(msg, fields...)
	}
}

// Error reports a failure together with its cause.
func (s *Sink) Error(msg string, err error, fields ...zap.Field) {
	s.log.Error(msg, append(fields, zap.Error(err))...)
}
