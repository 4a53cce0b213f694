package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger emits structured JSON entries keyed by action. Every service
// component gets its own service-scoped logger.
type Logger struct {
	entry *logrus.Entry
}

func New(service string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{FieldMap: logrus.FieldMap{
		logrus.FieldKeyTime: "timestamp",
		logrus.FieldKeyMsg:  "action",
	}})
	if os.Getenv("LOG_DEBUG") == "true" {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{entry: l.WithFields(logrus.Fields{
		"service":  service,
		"hostname": hostname(),
	})}
}

func (l *Logger) Info(action string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Info(action)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(action)
}

func (l *Logger) Warn(action string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(action)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	e := l.entry.WithFields(logrus.Fields(fields))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(action)
}

func hostname() string { h, _ := os.Hostname(); return h }
