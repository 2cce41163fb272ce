package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/logger"
)

// TestMultiOrder delivers to every sink in publish order.
func TestMultiOrder(t *testing.T) {
	t.Parallel()

	var first, second Recorder

	sink := Multi{&first, nil, &second}
	sink.Publish(context.Background(), NewUpdating("host", "1.1", "Host"))
	sink.Publish(context.Background(), NewResult(Success, map[string]any{}))

	require.Equal(t, []Type{Updating, Success}, first.Types())
	require.Equal(t, first.Events(), second.Events())
}

// TestTranscript mirrors log lines into a plain file.
func TestTranscript(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "console.log")

	l, closeFile, err := logger.NewFile(path)
	require.NoError(t, err)

	sink := NewTranscript(l)
	sink.Publish(context.Background(), NewLogLines("plugin", "stdout", "Collecting plugin", "Installed"))
	sink.Publish(context.Background(), NewRestart(Restarting, update.RestartComponent, nil))
	require.NoError(t, closeFile())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "plugin> Collecting plugin")
	require.Contains(t, string(contents), "plugin> Installed")
	require.Contains(t, string(contents), "restarting: component")
}

func TestTypeFinal(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{RestartFailed, RestartManually, Success, Error} {
		require.True(t, typ.Final(), typ)
	}

	for _, typ := range []Type{Updating, LogLines, UpdateFailed, Restarting} {
		require.False(t, typ.Final(), typ)
	}
}
