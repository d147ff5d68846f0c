package modbus

import "go.uber.org/zap"

// Logger is the leveled logging interface threaded through the client
// channel, session and server, expressed with structured key-value
// pairs rather than printf-style formatting, matching zap's
// SugaredLogger idiom.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

// NewZapLogger wraps a *zap.Logger for use as a modbus.Logger, tagging
// every line with "component".
func NewZapLogger(base *zap.Logger, component string) Logger {
	return &zapLogger{s: base.Sugar().With("component", component)}
}

// NewDefaultLogger returns a production zap logger wrapped for the
// given component name. It never returns an error: failures building
// the production config fall back to zap's no-op logger.
func NewDefaultLogger(component string) Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return NewZapLogger(base, component)
}

// NopLogger discards everything. Used when callers pass WithLogger(nil).
type NopLogger struct{}

func (NopLogger) Debugw(string, ...interface{}) {}
func (NopLogger) Infow(string, ...interface{})  {}
func (NopLogger) Warnw(string, ...interface{})  {}
func (NopLogger) Errorw(string, ...interface{}) {}
