package ops

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nostrgit/ngit/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *config.Logging
	}{
		{name: "text format", config: &config.Logging{Level: "info", Format: "text"}},
		{name: "json format", config: &config.Logging{Level: "debug", Format: "json"}},
		{name: "warn level", config: &config.Logging{Level: "warn", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("expected logger to be created")
			}
			if logger.format != tt.config.Format {
				t.Errorf("expected format %s, got %s", tt.config.Format, logger.format)
			}
		})
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.Logging{Level: "info", Format: "text"}, &buf)
	componentLogger := logger.WithComponent("test-component")

	componentLogger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected log output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, "component") {
		t.Errorf("expected log output to contain 'component', got: %s", output)
	}
}

func TestIsDebugEnabled(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected bool
	}{
		{"debug level", "debug", true},
		{"info level", "info", false},
		{"warn level", "warn", false},
		{"error level", "error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(&config.Logging{Level: tt.level, Format: "text"})
			if logger.IsDebugEnabled() != tt.expected {
				t.Errorf("expected IsDebugEnabled to be %v, got %v", tt.expected, logger.IsDebugEnabled())
			}
		})
	}
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.Logging{Level: "debug", Format: "text"}, &buf)

	logger.LogRelayConnection("wss://relay.test", true, nil)
	logger.LogRelayConnection("wss://relay.test", false, errors.New("boom"))
	logger.LogFetchReport("1 new proposal", 50*time.Millisecond)
	logger.LogCacheOperation("save", "local", true)
	logger.LogTransferProgress(TransferFetch, TransferInProgress, "receiving objects")
	logger.LogTransferProgress(TransferPush, TransferComplete, "done")

	output := buf.String()
	if output == "" {
		t.Error("expected log output, got empty string")
	}
	if !strings.Contains(output, "fetch complete") {
		t.Errorf("expected fetch report line, got: %s", output)
	}
}
