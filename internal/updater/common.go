package updater

import (
	"fmt"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

// streamMessage tags lines produced by the mechanism itself.
const streamMessage = "message"

// commandFailed turns a non-zero exit into an UpdateError carrying the output.
func commandFailed(result *executor.Result) error {
	return &update.UpdateError{
		Data: map[string]any{
			"exit_code": result.ExitCode,
			"stdout":    result.Stdout,
			"stderr":    result.Stderr,
		},
		Err: fmt.Errorf("%w: command exited with %d", update.ErrStrategyExecution, result.ExitCode),
	}
}
