package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/repository/versioncache"
)

type countingChecker struct {
	calls     atomic.Int32
	info      update.Information
	isCurrent bool
	err       error
	panics    bool
}

func (c *countingChecker) CheckLatest(context.Context, *update.Target) (update.Information, bool, error) {
	c.calls.Add(1)

	if c.panics {
		panic("checker exploded")
	}

	return c.info, c.isCurrent, c.err
}

type checkRegistry map[string]*countingChecker

func (r checkRegistry) Resolve(t *update.Target) (update.Checker, error) {
	c, ok := r[t.Name]
	if !ok {
		return nil, update.ErrUnknownCheckType
	}

	return c, nil
}

type fakeUpdater struct {
	possible bool
}

func (u fakeUpdater) CanApply(context.Context, *update.Target) bool { return u.possible }

func (u fakeUpdater) Apply(context.Context, *update.Target, string, update.LogFunc) (any, error) {
	return nil, nil
}

type updateRegistry map[string]fakeUpdater

func (r updateRegistry) Resolve(t *update.Target) (update.Updater, error) {
	u, ok := r[t.Name]
	if !ok {
		return nil, update.ErrUnknownUpdateType
	}

	return u, nil
}

func newInfo(local, remote string) update.Information {
	return update.Information{
		Local:  update.VersionName{Name: local, Value: local},
		Remote: update.VersionName{Name: remote, Value: remote},
	}
}

func newCache(t *testing.T) *versioncache.Cache {
	t.Helper()

	return versioncache.New(filepath.Join(t.TempDir(), "cache.yaml"), time.Hour)
}

// TestResolveServesValidCache never invokes the checker for a valid entry.
func TestResolveServesValidCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	checker := &countingChecker{info: newInfo("1", "2")}
	cache := newCache(t)
	cache.Put("a", update.VersionInfo{UpdateAvailable: true}, now.Add(-time.Minute))

	r := New(checkRegistry{"a": checker}, updateRegistry{}, cache, WithClock(func() time.Time { return now }))

	info, err := r.Resolve(ctx, update.NewTarget("a", nil), false)
	require.NoError(t, err)
	require.True(t, info.UpdateAvailable)
	require.Zero(t, checker.calls.Load())

	// Forced resolution bypasses the cache.
	info, err = r.Resolve(ctx, update.NewTarget("a", nil), true)
	require.NoError(t, err)
	require.Equal(t, int32(1), checker.calls.Load())
	require.True(t, info.UpdateAvailable)
	require.False(t, info.UpdatePossible)
}

// TestResolveClockSkew re-resolves an entry stamped in the future.
func TestResolveClockSkew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	checker := &countingChecker{info: newInfo("1", "1"), isCurrent: true}
	cache := newCache(t)
	cache.Put("a", update.VersionInfo{UpdateAvailable: true}, now.Add(time.Minute))

	r := New(checkRegistry{"a": checker}, updateRegistry{"a": {possible: true}}, cache,
		WithClock(func() time.Time { return now }))

	info, err := r.Resolve(ctx, update.NewTarget("a", nil), false)
	require.NoError(t, err)
	require.Equal(t, int32(1), checker.calls.Load())
	require.False(t, info.UpdateAvailable)
	require.True(t, info.UpdatePossible)

	entry, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, now, entry.Timestamp)
	require.True(t, cache.Dirty())
}

// TestResolveAllIsolatesFailures keeps going past broken targets.
func TestResolveAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newCache(t)
	checks := checkRegistry{
		"ok":      {info: newInfo("1", "2")},
		"current": {info: newInfo("2", "2"), isCurrent: true},
		"broken":  {err: errors.New("rate limited")},
		"panics":  {panics: true},
	}

	r := New(checks, updateRegistry{"ok": {possible: true}}, cache, WithWorkers(2))

	targets := map[string]*update.Target{
		"ok":       update.NewTarget("ok", nil),
		"current":  update.NewTarget("current", nil),
		"broken":   update.NewTarget("broken", nil),
		"panics":   update.NewTarget("panics", nil),
		"unknown":  update.NewTarget("unknown", map[string]any{"type": "svn"}),
		"disabled": update.NewTarget("disabled", map[string]any{"enabled": false}),
	}

	results := r.ResolveAll(ctx, targets, false)
	require.Len(t, results, 5)
	require.NotContains(t, results, "disabled")

	require.NoError(t, results["ok"].Err)
	require.True(t, results["ok"].Info.UpdateAvailable)
	require.True(t, results["ok"].Info.UpdatePossible)

	require.ErrorIs(t, results["unknown"].Err, update.ErrUnknownCheckType)
	require.False(t, results["unknown"].Info.UpdatePossible)
	require.Equal(t, update.UnknownVersion, results["unknown"].Info.Information.Local.Name)

	require.Error(t, results["broken"].Err)
	require.ErrorIs(t, results["panics"].Err, update.ErrStrategyExecution)

	require.Equal(t, StatusUpdatePossible, Status(results))
	require.False(t, cache.Dirty())

	entry, ok := cache.Get("broken")
	require.True(t, ok)
	require.False(t, entry.Info.UpdatePossible)
	require.False(t, entry.Info.UpdateAvailable)
}

// TestResolveCachesFailedCheck does not repeat a failing check while its entry is valid.
func TestResolveCachesFailedCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	checker := &countingChecker{err: errors.New("403 rate limit exceeded")}
	cache := newCache(t)

	r := New(checkRegistry{"a": checker}, updateRegistry{"a": {possible: true}}, cache,
		WithClock(func() time.Time { return now }))

	info, err := r.Resolve(ctx, update.NewTarget("a", nil), false)
	require.Error(t, err)
	require.False(t, info.UpdatePossible)

	info, err = r.Resolve(ctx, update.NewTarget("a", nil), false)
	require.NoError(t, err)
	require.False(t, info.UpdatePossible)
	require.False(t, info.UpdateAvailable)
	require.Equal(t, int32(1), checker.calls.Load())

	entry, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, now, entry.Timestamp)
}

// TestResolveAppliesConfiguredTTL expires an entry once the configured TTL shrinks.
func TestResolveAppliesConfiguredTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	checker := &countingChecker{info: newInfo("1", "2")}
	cache := newCache(t)
	cache.Put("a", update.VersionInfo{UpdateAvailable: true}, now.Add(-10*time.Minute))

	var ttl atomic.Int64
	ttl.Store(int64(time.Hour))

	r := New(checkRegistry{"a": checker}, updateRegistry{}, cache,
		WithClock(func() time.Time { return now }),
		WithTTL(func() time.Duration { return time.Duration(ttl.Load()) }))

	_, err := r.Resolve(ctx, update.NewTarget("a", nil), false)
	require.NoError(t, err)
	require.Zero(t, checker.calls.Load())

	ttl.Store(int64(5 * time.Minute))

	_, err = r.Resolve(ctx, update.NewTarget("a", nil), false)
	require.NoError(t, err)
	require.Equal(t, int32(1), checker.calls.Load())
	require.Equal(t, 5*time.Minute, cache.TTL())
}

// TestStatus aggregates availability.
func TestStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusCurrent, Status(nil))
	require.Equal(t, StatusUpdateAvailable, Status(map[string]Result{
		"a": {Info: update.VersionInfo{UpdateAvailable: true}},
		"b": {Info: update.VersionInfo{UpdatePossible: true}},
	}))
}
