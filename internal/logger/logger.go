package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// Init initializes the global logger with the specified log level
// (DEBUG, INFO, WARN or ERROR). An unrecognized level falls back to INFO.
func Init(logLevel string) {
	log = logrus.New()
	log.SetOutput(os.Stdout)

	// Structured JSON output so log aggregation can index fields
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		log.Warnf("Invalid log level '%s', defaulting to INFO", logLevel)
	}
	log.SetLevel(level)
}

// GetLogger returns the global logger instance, initializing it with
// INFO level if Init has not been called yet.
func GetLogger() *logrus.Logger {
	if log == nil {
		Init("INFO")
	}
	return log
}

// Debug logs a debug message
func Debug(args ...interface{}) {
	GetLogger().Debug(args...)
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Info logs an info message
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

// Error logs an error message
func Error(args ...interface{}) {
	GetLogger().Error(args...)
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...interface{}) {
	GetLogger().Fatalf(format, args...)
}

// WithField returns a logger entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields returns a logger entry with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithTask returns a logger entry carrying the standard task fields
// attached to every association log line.
func WithTask(taskID, groupName string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"task_id":    taskID,
		"group_name": groupName,
	})
}
