package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/events"
	"github.com/oshokin/swupdate/internal/executor"
	"github.com/oshokin/swupdate/internal/logger"
)

var (
	// ErrManualRestart is returned when no restart command is configured.
	ErrManualRestart = errors.New("manual restart needed")

	errRestartExit = errors.New("restart command exited with non-zero status")
)

// CommandSource returns the restart command line for a restart type, or "".
type CommandSource func(r update.RestartType) string

// Coordinator executes the restart action decided after a run.
type Coordinator struct {
	exec     executor.Executor
	commands CommandSource
	events   events.Sink
}

// NewCoordinator creates a restart coordinator.
func NewCoordinator(exec executor.Executor, commands CommandSource, sink events.Sink) *Coordinator {
	if sink == nil {
		sink = events.Discard
	}

	return &Coordinator{
		exec:     exec,
		commands: commands,
		events:   sink,
	}
}

// Restart runs the command configured for r. Without a command it reports
// ErrManualRestart. A launch failure or non-zero exit is an
// *update.RestartFailedError. Nothing is retried.
func (c *Coordinator) Restart(ctx context.Context, r update.RestartType, results map[string]any) error {
	line := c.commands(r)
	if line == "" {
		logger.WarnKV(ctx, "No restart command configured, restart manually", "restart_type", r)
		c.events.Publish(ctx, events.NewRestart(events.RestartManually, r, results))

		return fmt.Errorf("%w: %s", ErrManualRestart, r)
	}

	logger.InfoKV(ctx, "Restarting", "restart_type", r, "command", line)
	c.events.Publish(ctx, events.NewRestart(events.Restarting, r, results))

	result, err := c.exec.Run(ctx, executor.Command{Line: line, Shell: true})
	if err != nil {
		failed := &update.RestartFailedError{Command: line, ExitCode: -1, Err: err}
		if result != nil {
			failed.ExitCode = result.ExitCode
			failed.Stdout = result.Stdout
			failed.Stderr = result.Stderr
		}

		return c.failed(ctx, r, results, failed)
	}

	if !result.Success() {
		return c.failed(ctx, r, results, &update.RestartFailedError{
			Command:  line,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Err:      errRestartExit,
		})
	}

	return nil
}

func (c *Coordinator) failed(ctx context.Context, r update.RestartType, results map[string]any, err *update.RestartFailedError) error {
	logger.ErrorKV(ctx, "Restart failed",
		"restart_type", r, "exit_code", err.ExitCode, "stdout", err.Stdout, "stderr", err.Stderr, "error", err.Err)
	c.events.Publish(ctx, events.NewRestart(events.RestartFailed, r, results))

	return err
}
