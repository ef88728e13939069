package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLogger_ComponentField(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	l := NewWithWriter("simulation", &buf)

	l.Infof("applied %s", "sim-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "simulation", line["component"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "applied sim-1", line["message"])
}

func TestZerologLogger_LevelFilter(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewWithWriter("route", &buf)

	l.Debugw("hidden", map[string]any{"k": 1})
	l.Infof("hidden")
	assert.Zero(t, buf.Len())

	l.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	l.Debugf("x")
	l.Debugw("x", nil)
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
}
