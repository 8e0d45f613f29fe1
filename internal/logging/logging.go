// Package logging builds the logrus logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/config"
)

// New configures a logger for the given mode. In stdio mode stdout carries
// the MCP protocol, so logs go to stderr and only when debug is enabled.
func New(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLevel(cfg.LogLevel))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	switch {
	case cfg.IsStdioMode() && cfg.IsDebug():
		logger.SetOutput(os.Stderr)
	case cfg.IsStdioMode():
		logger.SetOutput(io.Discard)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// ForTerminal returns a logger for an interactive client writing to w.
// Only errors are shown unless debug is set.
func ForTerminal(w io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.ErrorLevel)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return logger
}

// Discard returns a logger that drops everything. Handy for tests and for
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ParseLevel maps a configured level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
