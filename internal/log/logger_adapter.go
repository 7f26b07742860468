// Package log provides the structured Logger used by every gencam
// subsystem (genapi, gvcp, gvsp, timesync, events) to trace register
// reads/writes, control transactions, and block lifecycle events.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging interface used throughout gencam.
// Implementations must support field-based contextual logging so that
// call sites can attach node names, block ids, and request ids without
// string formatting.
type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
}

// Config controls the global logger constructed by Init.
type Config struct {
	Level   string          `mapstructure:"level"`
	Pattern string          `mapstructure:"pattern"`
	Time    string          `mapstructure:"time"`
	File    *FileAppender   `mapstructure:"file,omitempty"`
	Console bool            `mapstructure:"console"`
}

// FileAppender configures lumberjack-backed log rotation.
type FileAppender struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Pattern: "%time [%level] %field %msg",
		Time:    "2006-01-02T15:04:05.000Z07:00",
		Console: true,
	}
}

type logrusAdapter struct {
	entry *logrus.Entry
}

var (
	once   sync.Once
	logger Logger = &logrusAdapter{entry: logrus.NewEntry(logrus.StandardLogger())}
)

// GetLogger returns the process-wide Logger. Init must be called first
// for non-default configuration to take effect.
func GetLogger() Logger {
	return logger
}

// Init constructs the global logger from cfg. Safe to call once;
// subsequent calls are no-ops, matching the teacher's sync.Once guard.
func Init(cfg Config) error {
	var initErr error
	once.Do(func() {
		initErr = initByConfig(cfg)
	})
	return initErr
}

func initByConfig(cfg Config) error {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: cfg.Pattern, time: cfg.Time})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("gencam: invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	mw := NewMultiWriter()
	if cfg.Console || cfg.File == nil {
		mw.Add(os.Stdout)
	}
	if cfg.File != nil {
		if cfg.File.Path == "" {
			return fmt.Errorf("gencam: file log appender requires a path")
		}
		mw.Add(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}
	l.SetOutput(mw)

	logger = &logrusAdapter{entry: logrus.NewEntry(l)}
	return nil
}

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}

func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}

func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}

func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
