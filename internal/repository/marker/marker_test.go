package marker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquireRelease checks a marker is written and removed.
func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run", "update.lock")
	m := New(path, WithPID(100), WithProcessFinder(func(int) (bool, error) { return true, nil }))

	release, err := m.Acquire(ctx)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "100", string(contents))

	// The owner itself does not see the marker as held.
	require.False(t, m.Held(ctx))

	other := New(path, WithPID(200), WithProcessFinder(func(pid int) (bool, error) { return pid == 100, nil }))
	_, err = other.Acquire(ctx)
	require.ErrorIs(t, err, ErrHeld)

	release()

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestAcquireStale replaces a marker left by a dead process.
func TestAcquireStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "update.lock")
	require.NoError(t, os.WriteFile(path, []byte("4242"), 0o600))

	m := New(path, WithPID(7), WithProcessFinder(func(int) (bool, error) { return false, nil }))
	require.False(t, m.Held(ctx))

	release, err := m.Acquire(ctx)
	require.NoError(t, err)

	defer release()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "7", string(contents))
}

// TestCurrentProcessIsRunning exercises the real process table.
func TestCurrentProcessIsRunning(t *testing.T) {
	t.Parallel()

	running, err := processRunning(os.Getpid())
	require.NoError(t, err)
	require.True(t, running)
}

// TestAcquireConcurrent lets exactly one of several live processes win.
func TestAcquireConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "update.lock")
	alive := func(int) (bool, error) { return true, nil }

	const contenders = 8

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		winner  atomic.Int32
		held    atomic.Int32
	)

	for pid := 1; pid <= contenders; pid++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := New(path, WithPID(pid), WithProcessFinder(alive)).Acquire(ctx)
			if err == nil {
				winners.Add(1)
				winner.Store(int32(pid))

				return
			}

			if errors.Is(err, ErrHeld) {
				held.Add(1)
			}
		}()
	}

	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
	require.Equal(t, int32(contenders-1), held.Load())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(int(winner.Load())), string(contents))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
