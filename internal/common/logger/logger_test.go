package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNew_JSONAndConsole(t *testing.T) {
	l, err := New(Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Options{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestZapWrapper_FieldsAndChildren(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	child := log.Named("remote").With(map[string]interface{}{"requestId": "r-1"})
	child.Error("call failed", map[string]interface{}{
		"status": 502,
		"cause":  errors.New("bad gateway"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "remote", entry.LoggerName)
	assert.Equal(t, "call failed", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "r-1", ctx["requestId"])
	assert.EqualValues(t, 502, ctx["status"])
	assert.Equal(t, "bad gateway", ctx["cause"])
}

func TestWithError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapAdapter(zap.New(core)).WithError(errors.New("disk full"))

	log.Warn("storage write failed", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "disk full", logs.All()[0].ContextMap()["error"])
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	assert.NotPanics(t, func() {
		log.Info("ignored", map[string]interface{}{"k": "v"})
		log.Named("x").With(nil).Debug("ignored", nil)
	})
}

func TestNewStructured(t *testing.T) {
	log, err := NewStructured(Options{Level: "info", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, log)

	log, err = NewStructured(Options{Output: filepath.Join(t.TempDir(), "missing", "client.log")})
	require.Error(t, err)
	assert.Nil(t, log)
	assert.Contains(t, err.Error(), "build logger")
}
