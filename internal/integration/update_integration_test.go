package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate/internal/config"
	"github.com/oshokin/swupdate/internal/service/client"
	"github.com/oshokin/swupdate/internal/service/server"
)

// freeAddress reserves a free local port for a test server.
func freeAddress(t *testing.T) string {
	t.Helper()

	lc := net.ListenConfig{}

	l, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// startServer runs the real server on a temporary configuration.
// Returns the configuration path shared with the CLI.
func startServer(t *testing.T, checks string) string {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.DefaultConfigFilename)

	settings := fmt.Sprintf("listen_addr: %s\nevents_addr: %s\ndata_folder: %s\nchecks:\n%s",
		freeAddress(t), freeAddress(t), filepath.Join(dir, "data"), checks)
	require.NoError(t, os.WriteFile(cfgPath, []byte(settings), config.DefaultFilePermissions))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: cfgPath})
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Wait for the server to answer.
	require.Eventually(t, func() bool {
		return client.Status(context.Background(), &client.Options{ConfigPath: cfgPath, Out: new(bytes.Buffer)}) == nil
	}, 5*time.Second, 50*time.Millisecond)

	return cfgPath
}

// TestUpdate_EndToEnd checks a commandline target, updates it with a script,
// and follows the run over the events websocket.
func TestUpdate_EndToEnd(t *testing.T) {
	t.Parallel()

	installed := filepath.Join(t.TempDir(), "installed")

	checks := strings.Join([]string{
		"  host:",
		"    enabled: false",
		"  tool:",
		"    type: commandline",
		`    command: sh -c "echo 1.0; echo 2.0"`,
		"    update_script: echo installing {target_version} && echo {target_version} > " + installed,
		"",
	}, "\n")

	cfgPath := startServer(t, checks)
	ctx := context.Background()

	var out bytes.Buffer

	require.NoError(t, client.Check(ctx, &client.Options{ConfigPath: cfgPath, Out: &out}))
	require.Contains(t, out.String(), "update available")
	require.Contains(t, out.String(), "status: updatePossible")

	out.Reset()

	require.NoError(t, client.Update(ctx, &client.Options{
		ConfigPath: cfgPath,
		Targets:    []string{"tool"},
		Follow:     true,
		Out:        &out,
	}))

	require.Contains(t, out.String(), "[tool] updating to 2.0")
	require.Contains(t, out.String(), "[tool] installing 2.0")
	require.Contains(t, out.String(), "update finished")

	contents, err := os.ReadFile(installed)
	require.NoError(t, err)
	require.Equal(t, "2.0", strings.TrimSpace(string(contents)))

	out.Reset()

	require.NoError(t, client.Status(ctx, &client.Options{ConfigPath: cfgPath, Out: &out}))
	require.Equal(t, "idle\n", out.String())
}

// TestUpdate_FailedScript reports the failure of an unignorable target.
func TestUpdate_FailedScript(t *testing.T) {
	t.Parallel()

	checks := strings.Join([]string{
		"  host:",
		"    enabled: false",
		"  tool:",
		"    type: commandline",
		`    command: sh -c "echo 1.0; echo 2.0"`,
		"    update_script: echo broken >&2; exit 3",
		"",
	}, "\n")

	cfgPath := startServer(t, checks)

	var out bytes.Buffer

	err := client.Update(context.Background(), &client.Options{ConfigPath: cfgPath, Follow: true, Out: &out})
	require.ErrorIs(t, err, client.ErrRunFailed)
	require.Contains(t, out.String(), "[tool] broken")
	require.Contains(t, out.String(), "[tool] update failed")
}
