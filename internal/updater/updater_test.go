package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

type fakeExecutor struct {
	result *executor.Result
	err    error
	lines  []string
	calls  []executor.Command
}

func (f *fakeExecutor) Run(_ context.Context, cmd executor.Command) (*executor.Result, error) {
	f.calls = append(f.calls, cmd)

	for _, line := range f.lines {
		if cmd.OnLine != nil {
			cmd.OnLine(executor.Stdout, line)
		}
	}

	return f.result, f.err
}

type collected struct {
	lines []string
}

func (c *collected) log(_ string, lines ...string) {
	c.lines = append(c.lines, lines...)
}

// TestResolveMarkers checks mechanism selection.
func TestResolveMarkers(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(&fakeExecutor{})

	_, err := registry.Resolve(update.NewTarget("a", map[string]any{"type": "commandline"}))
	require.ErrorIs(t, err, update.ErrUnknownUpdateType)

	_, err = registry.Resolve(update.NewTarget("a", map[string]any{"update_script": "x", "pip": "y"}))
	require.ErrorIs(t, err, update.ErrConfigurationInvalid)

	custom := update.NewTarget("a", map[string]any{})
	custom.CustomUpdater = &scriptUpdater{}

	u, err := registry.Resolve(custom)
	require.NoError(t, err)
	require.Same(t, custom.CustomUpdater, u)
}

// TestScriptUpdater expands placeholders and streams output.
func TestScriptUpdater(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	folder := t.TempDir()
	exec := &fakeExecutor{result: &executor.Result{}, lines: []string{"Updating..."}}
	registry := NewRegistry(exec)
	target := update.NewTarget("plugin", map[string]any{
		"update_script":   "git -C {folder} pull && echo {target}@{target_version}",
		"checkout_folder": folder,
	})

	u, err := registry.Resolve(target)
	require.NoError(t, err)
	require.True(t, u.CanApply(ctx, target))

	var out collected

	payload, err := u.Apply(ctx, target, "1.2.3", out.log)
	require.NoError(t, err)
	require.Equal(t, "ok", payload)
	require.Contains(t, out.lines, "Updating...")
	require.Len(t, exec.calls, 1)
	require.Equal(t, "git -C "+folder+" pull && echo plugin@1.2.3", exec.calls[0].Line)
	require.True(t, exec.calls[0].Shell)
	require.Equal(t, folder, exec.calls[0].Dir)

	exec.result = &executor.Result{ExitCode: 1, Stderr: "merge conflict"}
	_, err = u.Apply(ctx, target, "1.2.3", out.log)

	var updateErr *update.UpdateError
	require.ErrorAs(t, err, &updateErr)
	require.Equal(t, 1, updateErr.Data.(map[string]any)["exit_code"])
	require.ErrorIs(t, err, update.ErrStrategyExecution)

	missing := update.NewTarget("plugin", map[string]any{
		"update_script":   "make",
		"checkout_folder": filepath.Join(folder, "absent"),
	})
	u, err = registry.Resolve(missing)
	require.NoError(t, err)
	require.False(t, u.CanApply(ctx, missing))
}

// TestPipUpdater picks the command and builds the install arguments.
func TestPipUpdater(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exec := &fakeExecutor{result: &executor.Result{}}
	registry := NewRegistry(exec,
		WithPipCommand("/opt/venv/bin/python -m pip"),
		WithLookPath(func(file string) (string, error) {
			if file == "/opt/venv/bin/python" {
				return file, nil
			}

			return "", errors.New("not found")
		}),
	)

	target := update.NewTarget("plugin", map[string]any{"pip": "https://example.com/plugin/{target_version}.zip"})

	u, err := registry.Resolve(target)
	require.NoError(t, err)
	require.True(t, u.CanApply(ctx, target))

	_, err = u.Apply(ctx, target, "2.0", func(string, ...string) {})
	require.NoError(t, err)
	require.Equal(t,
		[]string{"/opt/venv/bin/python", "-m", "pip", "install", "https://example.com/plugin/2.0.zip"},
		exec.calls[0].Args)

	own := update.NewTarget("plugin", map[string]any{"pip": "plugin", "pip_command": "pip3"})
	u, err = registry.Resolve(own)
	require.NoError(t, err)
	require.False(t, u.CanApply(ctx, own))
}

// TestBinaryUpdater replaces a file with a verified download.
func TestBinaryUpdater(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	payload := []byte("#!/bin/sh\necho new\n")
	sum := sha256.Sum256(payload)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/releases/3.1.0/tool" {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o755))

	registry := NewRegistry(&fakeExecutor{}, WithHTTPClient(server.Client()))
	target := update.NewTarget("tool", map[string]any{
		"binary": map[string]any{
			"url":      server.URL + "/releases/{target_version}/tool",
			"path":     path,
			"checksum": hex.EncodeToString(sum[:]),
		},
	})

	u, err := registry.Resolve(target)
	require.NoError(t, err)
	require.True(t, u.CanApply(ctx, target))

	_, err = u.Apply(ctx, target, "3.1.0", func(string, ...string) {})
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, contents)

	_, err = u.Apply(ctx, target, "9.9.9", func(string, ...string) {})

	var updateErr *update.UpdateError
	require.ErrorAs(t, err, &updateErr)

	bad := update.NewTarget("tool", map[string]any{
		"binary": map[string]any{"url": server.URL, "path": path, "checksum": "zz"},
	})
	u, err = registry.Resolve(bad)
	require.NoError(t, err)
	require.False(t, u.CanApply(ctx, bad))
}
