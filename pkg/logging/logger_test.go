package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name  string
		level LogLevel
		msg   string
	}{
		{"debug_level", LevelDebug, "test debug message"},
		{"info_level", LevelInfo, "test info message"},
		{"warn_level", LevelWarn, "test warn message"},
		{"error_level", LevelError, "test error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{
				Level:  tt.level,
				Pretty: false,
				Output: buf,
			})

			switch tt.level {
			case LevelDebug:
				logger.Debug().Msg(tt.msg)
			case LevelInfo:
				logger.Info().Msg(tt.msg)
			case LevelWarn:
				logger.Warn().Msg(tt.msg)
			case LevelError:
				logger.Error().Msg(tt.msg)
			}

			if output := buf.String(); !strings.Contains(output, tt.msg) {
				t.Errorf("Expected output to contain %q, got %q", tt.msg, output)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("cache")
	logger.Info().Str("key", "md:quote:AAPL").Msg("cache hit")

	output := buf.String()
	if !strings.Contains(output, "cache") {
		t.Errorf("Expected output to contain component 'cache', got %q", output)
	}
	if !strings.Contains(output, "md:quote:AAPL") {
		t.Errorf("Expected output to contain the key field, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelWarn,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("histstore")

	// These should NOT appear (below warn level)
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	// These SHOULD appear (warn level and above)
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at Warn level")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should be filtered out at Warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should be included at Warn level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message should be included at Warn level")
	}
}
