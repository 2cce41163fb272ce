// Package executor runs external commands for update strategies and restarts.
//
// Commands are given either as an argument vector or as a command line. A
// command line is split into words with shell quoting rules and executed
// directly, or handed to the system shell when Shell is set. Output is
// captured and optionally streamed line by line while the command runs.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/google/shlex"

	"github.com/oshokin/swupdate/internal/logger"
)

// Output streams.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

var (
	// ErrEmptyCommand is returned when there is nothing to run.
	ErrEmptyCommand = errors.New("empty command")
)

// Command describes one process invocation.
type Command struct {
	// Args is the argument vector. It wins over Line.
	Args []string
	// Line is a command line.
	Line string
	// Shell runs Line through the system shell instead of splitting it.
	Shell bool
	// Dir is the working directory.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// OnLine receives every output line as it is produced.
	OnLine func(stream, line string)
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit code.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Executor runs commands. Run fails only when the process cannot be started
// or waited for; a non-zero exit is reported in Result.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Process runs commands as operating system processes.
type Process struct{}

// New returns the operating system executor.
func New() *Process {
	return &Process{}
}

// Run implements Executor.
func (p *Process) Run(ctx context.Context, command Command) (*Result, error) {
	argv, err := Argv(command)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Running command", "argv", argv, "dir", command.Dir)

	//nolint:gosec // Running configured commands is the purpose of this package.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = command.Dir

	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attach stdout: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("attach stderr: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	var (
		wg                   sync.WaitGroup
		stdoutBuf, stderrBuf strings.Builder
		emitMu               sync.Mutex
	)

	emit := func(stream, line string) {
		if command.OnLine == nil {
			return
		}

		emitMu.Lock()
		defer emitMu.Unlock()

		command.OnLine(stream, line)
	}

	wg.Add(2)

	go collect(&wg, stdout, &stdoutBuf, Stdout, emit)
	go collect(&wg, stderr, &stderrBuf, Stderr, emit)

	// Pipes must be drained before Wait closes them.
	wg.Wait()

	result := &Result{}

	err = cmd.Wait()
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	var exitErr *exec.ExitError

	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, fmt.Errorf("wait for %s: %w", argv[0], err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("run %s: %w", argv[0], ctxErr)
	}

	logger.DebugKV(ctx, "Command finished", "argv", argv, "exit_code", result.ExitCode)

	return result, nil
}

// Argv resolves the argument vector of a command.
func Argv(command Command) ([]string, error) {
	if len(command.Args) > 0 {
		return command.Args, nil
	}

	line := strings.TrimSpace(command.Line)
	if line == "" {
		return nil, ErrEmptyCommand
	}

	if command.Shell {
		if runtime.GOOS == "windows" {
			return []string{"cmd.exe", "/C", line}, nil
		}

		return []string{"/bin/sh", "-c", line}, nil
	}

	argv, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("split command line: %w", err)
	}

	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	return argv, nil
}

func collect(wg *sync.WaitGroup, r io.Reader, buf *strings.Builder, stream string, emit func(stream, line string)) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		buf.WriteString(line)
		buf.WriteByte('\n')
		emit(stream, line)
	}

	// Drain whatever the scanner gave up on so the process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}
