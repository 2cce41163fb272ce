package updater

import (
	"context"
	"fmt"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

type pipUpdater struct {
	exec     executor.Executor
	command  string
	spec     string
	lookPath func(file string) (string, error)
}

// CanApply requires the package manager to be installed.
func (u *pipUpdater) CanApply(_ context.Context, _ *update.Target) bool {
	argv, err := executor.Argv(executor.Command{Line: u.command})
	if err != nil {
		return false
	}

	_, err = u.lookPath(argv[0])

	return err == nil
}

func (u *pipUpdater) Apply(ctx context.Context, _ *update.Target, targetVersion string, log update.LogFunc) (any, error) {
	argv, err := executor.Argv(executor.Command{Line: u.command})
	if err != nil {
		return nil, &update.UpdateError{Data: err.Error(), Err: fmt.Errorf("%w: %w", update.ErrConfigurationInvalid, err)}
	}

	spec := expand(u.spec, map[string]string{"target_version": targetVersion})
	argv = append(argv, "install", spec)

	log(streamMessage, fmt.Sprintf("Installing %s", spec))

	result, err := u.exec.Run(ctx, executor.Command{
		Args:   argv,
		OnLine: func(stream, l string) { log(stream, l) },
	})
	if err != nil {
		return nil, &update.UpdateError{Data: err.Error(), Err: fmt.Errorf("%w: %w", update.ErrStrategyExecution, err)}
	}

	if !result.Success() {
		return nil, commandFailed(result)
	}

	return "ok", nil
}
