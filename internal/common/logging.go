// Package common provides shared utilities for EdgarWatch
package common

import (
	"os"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

// Logger wraps arbor.ILogger. Every long-lived component holds one; job
// executions derive a correlated child via ForJob so one job's log lines can
// be traced through the fetcher, diff engine, and store.
type Logger struct {
	arbor.ILogger
}

// NewLoggerFromConfig creates the process logger: console writer on stderr
// plus a memory writer for diagnostics, at the configured level. An empty
// level means "info".
func NewLoggerFromConfig(cfg LoggingConfig) *Logger {
	level := cfg.Level
	if level == "" {
		level = "info"
	}

	arborLogger := arbor.NewLogger().
		WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			Writer:     os.Stderr,
			TimeFormat: "2006-01-02T15:04:05Z07:00",
		}).
		WithMemoryWriter(models.WriterConfiguration{
			Type: models.LogWriterTypeMemory,
		}).
		WithLevelFromString(level)

	return &Logger{ILogger: arborLogger}
}

// discardWriter implements writers.IWriter and swallows all output, keeping
// silent loggers from falling through to globally-registered writers.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error)           { return len(p), nil }
func (discardWriter) WithLevel(_ log.Level) writers.IWriter { return discardWriter{} }
func (discardWriter) GetFilePath() string                   { return "" }
func (discardWriter) Close() error                          { return nil }

// NewSilentLogger creates a logger that discards all output. Used by tests
// and as the default for clients constructed without an explicit logger.
func NewSilentLogger() *Logger {
	return &Logger{ILogger: arbor.NewLogger().WithWriters([]writers.IWriter{discardWriter{}})}
}

// ForJob returns a child logger whose events carry the job id as the
// correlation id. The job manager hands this to every handler invocation.
func (l *Logger) ForJob(jobID string) *Logger {
	return &Logger{ILogger: l.ILogger.WithCorrelationId(jobID)}
}
