package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"ERROR", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "FATAL", LevelFatal.String())
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelWarn)

	log.Debug("debug line")
	log.Info("info line")
	log.Warn("warn line")
	log.Error("error line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
	assert.Contains(t, out, "error line")
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelDebug).
		WithComponent("council").
		WithField("request_id", "req-1").
		WithFields(map[string]interface{}{"backends": 3})

	log.Info("convened")

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))

	assert.Equal(t, "council", entry["component"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(3), entry["backends"])
	assert.Equal(t, "convened", entry["message"])
}

func TestGlobalLoggerSwap(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	var buf bytes.Buffer
	SetGlobal(NewWithWriter(&buf, LevelDebug))

	Info("hello from global")
	assert.Contains(t, buf.String(), "hello from global")
}
