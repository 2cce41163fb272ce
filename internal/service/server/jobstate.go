package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/swupdate/internal/executor"
)

// Exit codes of the job state command.
const (
	jobBusyExitCode = 0
	jobIdleExitCode = 1
)

// errJobState is returned when the job state command answers with an unexpected exit code.
var errJobState = errors.New("unexpected job state exit code")

// jobStateProbe runs command to learn whether the managed device is busy.
// An empty command means the device is never busy.
func jobStateProbe(exec executor.Executor, command func() string) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		line := command()
		if line == "" {
			return false, nil
		}

		result, err := exec.Run(ctx, executor.Command{
			Line:  line,
			Shell: true,
		})
		if err != nil {
			return false, fmt.Errorf("run %q: %w", line, err)
		}

		switch result.ExitCode {
		case jobBusyExitCode:
			return true, nil
		case jobIdleExitCode:
			return false, nil
		default:
			return false, fmt.Errorf("%w: %d", errJobState, result.ExitCode)
		}
	}
}
