package observability

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captureOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := log.Default()
	log.SetOutput(&buf)

	f()

	log.SetOutput(oldLogger.Writer())
	return buf.String()
}

func TestLogger_LogLevels(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("test-service").(*StandardLogger).WithLevel(LogLevelDebug)

		logger.Debug("Debug message", map[string]interface{}{"key": "value"})
		logger.Info("Info message", map[string]interface{}{"key": "value"})
		logger.Warn("Warn message", map[string]interface{}{"key": "value"})
	})

	t.Logf("Log output: %s", output)

	if !strings.Contains(output, "Debug message") {
		t.Error("Expected Debug message but it was not found in the output")
	}
	if !strings.Contains(output, "Info message") {
		t.Error("Expected Info message but it was not found in the output")
	}
	if !strings.Contains(output, "Warn message") {
		t.Error("Expected Warn message but it was not found in the output")
	}
}

func TestLogger_MinimumLevel(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLoggerWithLevel("test-service", LogLevelInfo)

		// Debug should be filtered out at INFO level
		logger.Debug("Debug message", map[string]interface{}{"key": "value"})
		logger.Info("Info message", map[string]interface{}{"key": "value"})
	})

	t.Logf("Log output: %s", output)

	if strings.Contains(output, "Debug message") {
		t.Error("Did not expect Debug message when minimum level is INFO")
	}
	if !strings.Contains(output, "Info message") {
		t.Error("Expected Info message but it was not found in the output")
	}
}

func TestLogger_WithPrefix(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("parent-service")
		prefixedLogger := logger.WithPrefix("child")

		prefixedLogger.Info("Prefixed message", nil)
	})

	if !strings.Contains(output, "[child]") {
		t.Errorf("Expected [child] prefix in output, got: %s", output)
	}
	if !strings.Contains(output, "Prefixed message") {
		t.Error("Expected Prefixed message but it was not found in the output")
	}
}

func TestLogger_Fields(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("test-service")
		logger.Info("With fields", map[string]interface{}{"query": "capital of France", "hit": true})
	})

	if !strings.Contains(output, "query=capital of France") {
		t.Errorf("Expected query field in output, got: %s", output)
	}
	if !strings.Contains(output, "hit=true") {
		t.Errorf("Expected hit field in output, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"DEBUG":   LogLevelDebug,
		"info":    LogLevelInfo,
		"warn":    LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"fatal":   LogLevelFatal,
		"":        LogLevelInfo,
		"bogus":   LogLevelInfo,
		" info ":  LogLevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	output := captureOutput(func() {
		logger := NewNoopLogger()
		logger.Info("Should not appear", map[string]interface{}{"key": "value"})
		logger.Error("Also silent", nil)
		logger.WithPrefix("child").Warn("Still silent", nil)
	})

	if output != "" {
		t.Errorf("NoopLogger produced output: %s", output)
	}
}
