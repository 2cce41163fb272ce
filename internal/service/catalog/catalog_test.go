package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate/internal/domain/update"
)

type staticSource map[string]map[string]any

func (s staticSource) Checks() map[string]map[string]any {
	return s
}

type failingContributor struct{}

func (failingContributor) Name() string { return "failing" }

func (failingContributor) Contribute(context.Context) (map[string]Contribution, error) {
	return nil, errors.New("broken plugin")
}

type nopChecker struct{}

func (nopChecker) CheckLatest(context.Context, *update.Target) (update.Information, bool, error) {
	return update.Information{}, true, nil
}

// TestCatalogMergesContributions checks that configured records win.
func TestCatalogMergesContributions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := staticSource{
		"host":   {"type": "github_release", "user": "acme", "repo": "host"},
		"plugin": {"user": "fork"},
	}
	contributor := NewStatic("plugins", map[string]Contribution{
		"plugin": {Record: map[string]any{"type": "github_release", "user": "origin", "repo": "plugin", "pip": "x"}},
		"custom": {Record: map[string]any{"display_name": "Custom"}, Checker: nopChecker{}},
	})

	c := New(source, HostBuild{Version: "1.4.0", Commit: "abc"}, failingContributor{}, contributor)

	require.Equal(t, []string{"custom", "host", "plugin"}, c.Names(ctx))

	plugin, ok := c.Target(ctx, "plugin")
	require.True(t, ok)
	require.Equal(t, "fork", plugin.Config["user"])
	require.Equal(t, "plugin", plugin.Config["repo"])
	require.Equal(t, "plugin", plugin.DisplayName)

	host, ok := c.Target(ctx, "HOST")
	require.True(t, ok)
	require.Equal(t, "Host", host.DisplayName)
	require.Equal(t, "1.4.0", host.Current)
	require.Equal(t, "1.4.0", host.DisplayVersion)

	custom, ok := c.Target(ctx, "custom")
	require.True(t, ok)
	require.Equal(t, update.CheckCustom, custom.CheckType())
	require.NotNil(t, custom.CustomChecker)
	require.Equal(t, "Custom", custom.DisplayName)
	require.Equal(t, update.UnknownVersion, custom.DisplayVersion)
}

// TestCatalogCopiesAndInvalidate checks isolation of returned targets.
func TestCatalogCopiesAndInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := staticSource{"a": {"type": "commandline", "command": "x"}}
	c := New(source, HostBuild{})

	a, _ := c.Target(ctx, "a")
	a.Config["command"] = "mutated"

	again, _ := c.Target(ctx, "a")
	require.Equal(t, "x", again.Config["command"])

	source["b"] = map[string]any{"type": "commandline"}
	require.Len(t, c.Targets(ctx), 1)

	c.Invalidate()
	require.Len(t, c.Targets(ctx), 2)
}

// TestDisplayVersionTemplate expands placeholders.
func TestDisplayVersionTemplate(t *testing.T) {
	t.Parallel()

	c := New(staticSource{}, HostBuild{Version: "1.4.0"})
	target := update.NewTarget("plugin", map[string]any{"display_version": "{local_name} for {host_version}"})

	got := c.DisplayVersion(target, update.Information{Local: update.VersionName{Name: "0.9", Value: "0.9"}})
	require.Equal(t, "0.9 for 1.4.0", got)
}

// TestDirContributor loads every yaml file of a folder.
func TestDirContributor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
Plugin:
  type: github_release
  user: acme
  repo: plugin
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(`
other:
  type: commandline
  command: ./check.sh
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	contributions, err := NewDir(dir).Contribute(context.Background())
	require.NoError(t, err)
	require.Len(t, contributions, 2)
	require.Equal(t, "acme", contributions["plugin"].Record["user"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), []byte("- not a mapping"), 0o600))

	_, err = NewDir(dir).Contribute(context.Background())
	require.Error(t, err)
}
