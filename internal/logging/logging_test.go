package logging

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/a3tai/pdf-playground/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"info":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"WARNING": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_OutputFollowsMode(t *testing.T) {
	server := config.DefaultConfig()
	assert.Equal(t, os.Stdout, New(server).Out)

	stdio := config.DefaultConfig()
	stdio.Mode = config.ModeStdio
	assert.Equal(t, io.Discard, New(stdio).Out)

	stdio.LogLevel = "debug"
	logger := New(stdio)
	assert.Equal(t, os.Stderr, logger.Out)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestForTerminal(t *testing.T) {
	var buf bytes.Buffer

	logger := ForTerminal(&buf, false)
	logger.Warn("quiet")
	logger.Error("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")

	buf.Reset()
	logger = ForTerminal(&buf, true)
	logger.Debug("details")
	assert.Contains(t, buf.String(), "details")
}
