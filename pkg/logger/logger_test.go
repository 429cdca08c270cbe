package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	l := &ZapLogger{log: base.Sugar(), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}

	child := l.With("campaign_id", 7)
	child.Info("Campaign send started", "recipients", 3)
	l.Info("unbound")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"campaign_id": int64(7), "recipients": int64(3)}, entries[0].ContextMap())
	assert.Equal(t, "logger_test.go", filepath.Base(entries[0].Caller.File))
	assert.Empty(t, entries[1].ContextMap())
}

func TestParseLevel(t *testing.T) {
	lvl, ok := parseLevel("WARN, debug")
	assert.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, ok = parseLevel("loud")
	assert.False(t, ok)
	_, ok = parseLevel("")
	assert.False(t, ok)
}
