package fiasco

import "go.uber.org/zap"

// Logger is the timer/logging sink the core reports to. Core packages
// never log on their own; the facade and CLI feed progress and warnings
// through this interface so library users can plug in their own sink.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{}) {}
func (NopLogger) Warnf(string, ...interface{})  {}

// ZapLogger adapts a zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	S *zap.SugaredLogger
}

func (l ZapLogger) Debugf(format string, args ...interface{}) { l.S.Debugf(format, args...) }
func (l ZapLogger) Warnf(format string, args ...interface{})  { l.S.Warnf(format, args...) }
