// Package log provides a thread-safe, structured logging infrastructure built on logrus.
//
// All records are emitted on stderr so that raw stream bytes on stdout stay clean.
// When persistence is enabled, records are additionally appended to a dated file.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/filesystem"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/where"
)

// Setup initializes the logging subsystem: sink, formatting, and severity level.
func Setup() error {
	var sink io.Writer = os.Stderr

	if viper.GetBool(key.LogsWrite) {
		dir := where.Logs()
		if dir == "" {
			return errors.New("log directory path is empty")
		}

		filename := fmt.Sprintf("%s.log", time.Now().Format("2006-01-02"))
		path := filepath.Join(dir, filename)

		f, err := filesystem.API().OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		sink = io.MultiWriter(os.Stderr, f)
	}

	logrus.SetOutput(sink)

	if viper.GetBool(key.LogsJson) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}

	lvl := viper.GetString(key.LogsLevel)
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		parsed = logrus.WarnLevel
	}
	logrus.SetLevel(parsed)

	return nil
}

// SetLevel overrides the active severity level, typically from a CLI flag.
func SetLevel(lvl string) {
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		return
	}
	logrus.SetLevel(parsed)
}

// WithField returns an entry annotated with a single structured field.
func WithField(k string, v interface{}) *logrus.Entry {
	return logrus.WithField(k, v)
}

// Severity-specific log emissions, proxied to the configured backend.

func Error(args ...interface{})                 { logrus.Error(args...) }
func Errorf(format string, args ...interface{}) { logrus.Errorf(format, args...) }
func Warn(args ...interface{})                  { logrus.Warn(args...) }
func Warnf(format string, args ...interface{})  { logrus.Warnf(format, args...) }
func Info(args ...interface{})                  { logrus.Info(args...) }
func Infof(format string, args ...interface{})  { logrus.Infof(format, args...) }
func Debug(args ...interface{})                 { logrus.Debug(args...) }
func Debugf(format string, args ...interface{}) { logrus.Debugf(format, args...) }
func Trace(args ...interface{})                 { logrus.Trace(args...) }
func Tracef(format string, args ...interface{}) { logrus.Tracef(format, args...) }
