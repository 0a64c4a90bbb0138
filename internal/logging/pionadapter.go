package logging

import pionlog "github.com/pion/logging"

// pionLogger adapts one of this package's tagged Loggers to pion's
// LeveledLogger interface, so pion/dtls and pion/sctp's internal
// diagnostics flow through the same colorized, LOGLEVEL-controlled sink as
// the rest of the server instead of a second, disconnected log stream.
type pionLogger struct {
	*Logger
}

func (l pionLogger) Trace(msg string)                          { l.Log(MaxLevel, 2, "%s", msg) }
func (l pionLogger) Tracef(format string, args ...interface{})  { l.Log(MaxLevel, 2, format, args...) }
func (l pionLogger) Debug(msg string)                           { l.Log(Debug, 2, "%s", msg) }
func (l pionLogger) Debugf(format string, args ...interface{})  { l.Log(Debug, 2, format, args...) }
func (l pionLogger) Info(msg string)                            { l.Log(Info, 2, "%s", msg) }
func (l pionLogger) Infof(format string, args ...interface{})   { l.Log(Info, 2, format, args...) }
func (l pionLogger) Warn(msg string)                            { l.Log(Warn, 2, "%s", msg) }
func (l pionLogger) Warnf(format string, args ...interface{})   { l.Log(Warn, 2, format, args...) }
func (l pionLogger) Error(msg string)                           { l.Log(Error, 2, "%s", msg) }
func (l pionLogger) Errorf(format string, args ...interface{})  { l.Log(Error, 2, format, args...) }

// PionLoggerFactory builds a pion logging.LoggerFactory that derives every
// scope's logger from base via WithTag, the same derivation the rest of
// this codebase uses for its own tagged loggers.
type PionLoggerFactory struct {
	Base *Logger
}

// NewLogger implements pion/logging.LoggerFactory.
func (f PionLoggerFactory) NewLogger(scope string) pionlog.LeveledLogger {
	return pionLogger{f.Base.WithTag(scope)}
}

var _ pionlog.LoggerFactory = PionLoggerFactory{}
