package versioncache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate/internal/domain/update"
)

const hostTarget = "host"

func hostInfo(version string) update.VersionInfo {
	return update.VersionInfo{
		Information: update.Information{
			Local:  update.VersionName{Name: version, Value: version},
			Remote: update.VersionName{Name: "2.0.0", Value: "2.0.0"},
		},
		UpdateAvailable: true,
		UpdatePossible:  true,
	}
}

// TestCache_LookupTTL verifies expiry at the TTL boundary and on clock skew.
func TestCache_LookupTTL(t *testing.T) {
	t.Parallel()

	cache := New(filepath.Join(t.TempDir(), "cache.yaml"), time.Minute)
	stamped := time.Unix(1_700_000_000, 0)

	cache.Put("a", hostInfo("1.0.0"), stamped)
	require.True(t, cache.Dirty())

	_, ok := cache.Lookup("a", stamped.Add(time.Minute-time.Second))
	require.True(t, ok)

	_, ok = cache.Lookup("a", stamped.Add(time.Minute))
	require.False(t, ok)

	_, ok = cache.Lookup("a", stamped.Add(-time.Second))
	require.False(t, ok)

	// TTL changes apply to existing entries on the next read.
	cache.SetTTL(time.Hour)
	_, ok = cache.Lookup("a", stamped.Add(time.Minute))
	require.True(t, ok)

	cache.Invalidate("a")
	_, ok = cache.Get("a")
	require.False(t, ok)
}

// TestCache_SaveLoad_Roundtrip ensures the same identity reproduces the mapping.
func TestCache_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "data", "cache.yaml")
	now := time.Now()

	cache := New(file, time.Hour)
	cache.Put(hostTarget, hostInfo("1.0.0"), now)
	cache.Put("plugin", update.VersionInfo{Information: update.Information{}.WithDefaults()}, now)

	require.NoError(t, cache.SaveIfDirty(ctx))
	require.False(t, cache.Dirty())

	_, err := os.Stat(file)
	require.NoError(t, err)

	reloaded := New(file, time.Hour)
	reloaded.Load(ctx, hostTarget, "1.0.0")
	require.Equal(t, cache.Snapshot(), reloaded.Snapshot())

	other := New(file, time.Hour)
	other.Load(ctx, hostTarget, "1.1.0")
	require.Empty(t, other.Snapshot())
}

// TestCache_LoadFailsSoft checks that garbage and missing files give an empty cache.
func TestCache_LoadFailsSoft(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	missing := New(filepath.Join(dir, "missing.yaml"), time.Hour)
	missing.Load(ctx, hostTarget, "1.0.0")
	require.Empty(t, missing.Snapshot())

	file := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(file, []byte("host: [unterminated"), 0o600))

	broken := New(file, time.Hour)
	broken.Put("stale", hostInfo("0.1.0"), time.Now())
	broken.Load(ctx, hostTarget, "1.0.0")
	require.Empty(t, broken.Snapshot())
	require.False(t, broken.Dirty())
}

// TestCache_SaveLeavesNoTemporaryFiles checks the atomic replace.
func TestCache_SaveLeavesNoTemporaryFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache := New(filepath.Join(dir, "cache.yaml"), time.Hour)
	cache.Put(hostTarget, hostInfo("1.0.0"), time.Now())

	require.NoError(t, cache.Save(context.Background()))
	require.NoError(t, cache.Save(context.Background()))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "cache.yaml", files[0].Name())
}
