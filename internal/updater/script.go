package updater

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

type scriptUpdater struct {
	exec executor.Executor
	cfg  update.ScriptUpdate
}

func (u *scriptUpdater) CanApply(_ context.Context, _ *update.Target) bool {
	if u.cfg.Script == "" {
		return false
	}

	if u.cfg.Folder == "" {
		return true
	}

	info, err := os.Stat(u.cfg.Folder)

	return err == nil && info.IsDir()
}

func (u *scriptUpdater) Apply(ctx context.Context, t *update.Target, targetVersion string, log update.LogFunc) (any, error) {
	line := expand(u.cfg.Script, map[string]string{
		"folder":         u.cfg.Folder,
		"target":         t.Name,
		"target_version": targetVersion,
	})

	log(streamMessage, "Running: "+line)

	result, err := u.exec.Run(ctx, executor.Command{
		Line:   line,
		Shell:  true,
		Dir:    u.cfg.Folder,
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
