package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// RestyLogger routes resty's internal logging through zap
type RestyLogger struct {
	log *zap.Logger
}

// NewRestyLogger wraps a zap logger for use with resty.Client.SetLogger
func NewRestyLogger(log *zap.Logger) RestyLogger {
	return RestyLogger{log: log.WithOptions(zap.AddCallerSkip(1))}
}

func (l RestyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l RestyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l RestyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
