package logger

import (
	"encoding/json"
	"io"

	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
)

// echoLogger routes echo's internal logging through logrus.
type echoLogger struct {
	log    *logrus.Logger
	prefix string
}

// New returns an echo.Logger backed by the global logrus logger.
func New() *echoLogger {
	return &echoLogger{log: logrus.StandardLogger()}
}

func (e *echoLogger) Output() io.Writer       { return e.log.Out }
func (e *echoLogger) SetOutput(w io.Writer)   { e.log.SetOutput(w) }
func (e *echoLogger) Prefix() string          { return e.prefix }
func (e *echoLogger) SetPrefix(p string)      { e.prefix = p }
func (e *echoLogger) SetHeader(h string)      {}

func (e *echoLogger) Level() log.Lvl {
	switch e.log.Level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return log.DEBUG
	case logrus.InfoLevel:
		return log.INFO
	case logrus.WarnLevel:
		return log.WARN
	default:
		return log.ERROR
	}
}

func (e *echoLogger) SetLevel(v log.Lvl) {
	switch v {
	case log.DEBUG:
		e.log.SetLevel(logrus.DebugLevel)
	case log.INFO:
		e.log.SetLevel(logrus.InfoLevel)
	case log.WARN:
		e.log.SetLevel(logrus.WarnLevel)
	default:
		e.log.SetLevel(logrus.ErrorLevel)
	}
}

func (e *echoLogger) Print(i ...interface{})                    { e.log.Print(i...) }
func (e *echoLogger) Printf(format string, args ...interface{}) { e.log.Printf(format, args...) }
func (e *echoLogger) Printj(j log.JSON)                         { e.log.Print(asJSON(j)) }
func (e *echoLogger) Debug(i ...interface{})                    { e.log.Debug(i...) }
func (e *echoLogger) Debugf(format string, args ...interface{}) { e.log.Debugf(format, args...) }
func (e *echoLogger) Debugj(j log.JSON)                         { e.log.Debug(asJSON(j)) }
func (e *echoLogger) Info(i ...interface{})                     { e.log.Info(i...) }
func (e *echoLogger) Infof(format string, args ...interface{})  { e.log.Infof(format, args...) }
func (e *echoLogger) Infoj(j log.JSON)                          { e.log.Info(asJSON(j)) }
func (e *echoLogger) Warn(i ...interface{})                     { e.log.Warn(i...) }
func (e *echoLogger) Warnf(format string, args ...interface{})  { e.log.Warnf(format, args...) }
func (e *echoLogger) Warnj(j log.JSON)                          { e.log.Warn(asJSON(j)) }
func (e *echoLogger) Error(i ...interface{})                    { e.log.Error(i...) }
func (e *echoLogger) Errorf(format string, args ...interface{}) { e.log.Errorf(format, args...) }
func (e *echoLogger) Errorj(j log.JSON)                         { e.log.Error(asJSON(j)) }
func (e *echoLogger) Fatal(i ...interface{})                    { e.log.Fatal(i...) }
func (e *echoLogger) Fatalf(format string, args ...interface{}) { e.log.Fatalf(format, args...) }
func (e *echoLogger) Fatalj(j log.JSON)                         { e.log.Fatal(asJSON(j)) }
func (e *echoLogger) Panic(i ...interface{})                    { e.log.Panic(i...) }
func (e *echoLogger) Panicf(format string, args ...interface{}) { e.log.Panicf(format, args...) }
func (e *echoLogger) Panicj(j log.JSON)                         { e.log.Panic(asJSON(j)) }

func asJSON(j log.JSON) string {
	bs, err := json.Marshal(j)
	if err != nil {
		return "invalid json log entry"
	}
	return string(bs)
}
