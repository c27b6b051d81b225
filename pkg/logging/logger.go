// Package logging provides the shared structured logger for the navigation core.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Entry is the per-subsystem logging handle returned by For.
type Entry = logrus.Entry

// Root is the base logger instance every subsystem derives from.
var Root *logrus.Logger

func init() {
	Root = New("info")
}

// New creates a configured logger writing JSON lines to stdout.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// SetLevel changes the root logger's level at runtime.
func SetLevel(level string) {
	switch level {
	case "debug":
		Root.SetLevel(logrus.DebugLevel)
	case "warn":
		Root.SetLevel(logrus.WarnLevel)
	case "error":
		Root.SetLevel(logrus.ErrorLevel)
	default:
		Root.SetLevel(logrus.InfoLevel)
	}
}

// For returns a logger entry tagged with the given component name, the
// convention every subsystem in this repo uses instead of ad-hoc logging.
func For(component string) *logrus.Entry {
	return Root.WithField("component", component)
}
