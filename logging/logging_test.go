package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
		} else {
			assert.NoError(t, err, tt.input)
		}
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestInitFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, "text", &buf)
	defer Init(LevelInfo, "text", os.Stderr)

	Info("Test", "hidden %d", 1)
	Warn("Test", "shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "subsystem=Test")
}

func TestErrorIncludesErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, "json", &buf)
	defer Init(LevelInfo, "text", os.Stderr)

	Error("ContainerManager", errors.New("boom"), "failed to stop route '%s'", "app")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"subsystem":"ContainerManager"`)
	assert.Contains(t, out, "failed to stop route 'app'")
}

func TestInitLogsLevelName(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, "text", &buf)
	defer Init(LevelInfo, "text", os.Stderr)

	assert.Contains(t, buf.String(), "Logger initialised at level DEBUG (text)")
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
