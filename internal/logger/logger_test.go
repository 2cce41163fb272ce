package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers checks that loggers survive a context round trip and fall back to the global one.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))

	named := New(nil).Named("test")
	ctx := ToContext(context.Background(), named)
	require.Same(t, named, FromContext(ctx))

	ctx = WithKV(WithName(ctx, "child"), "target", "host")
	require.NotSame(t, named, FromContext(ctx))
}

// TestNewFile verifies that the console transcript is written as plain text.
func TestNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "console.log")

	l, closeFn, err := NewFile(path)
	require.NoError(t, err)

	l.Debug("host > Cloning into 'repo'...")
	require.NoError(t, closeFn())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "host > Cloning into 'repo'...")
}

// TestWithLevel checks that the option filters below the requested level.
func TestWithLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core, WithLevel(zapcore.WarnLevel)).Sugar()

	l.Info("hidden")
	l.Warn("shown")
	l.With("target", "host").Error("also shown")

	require.Equal(t, 2, logs.Len())
	require.Equal(t, "shown", logs.All()[0].Message)
	require.Equal(t, "host", logs.All()[1].ContextMap()["target"])
}
