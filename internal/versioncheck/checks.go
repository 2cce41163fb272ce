package versioncheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

const shortSHALength = 7

type releaseChecker struct {
	github *GitHub
	cfg    update.GithubReleaseCheck
}

func (c *releaseChecker) CheckLatest(ctx context.Context, _ *update.Target) (update.Information, bool, error) {
	release, err := c.github.LatestRelease(ctx, c.cfg.User, c.cfg.Repo, c.cfg.Prerelease)
	if err != nil {
		return update.Information{}, false, fmt.Errorf("%w: %w", update.ErrStrategyExecution, err)
	}

	info := update.Information{
		Local:  update.VersionName{Name: c.cfg.Current, Value: c.cfg.Current},
		Remote: update.VersionName{Name: release.Name, Value: release.Tag},
	}

	if c.cfg.Current == "" {
		return info.WithDefaults(), false, nil
	}

	return info.WithDefaults(), isCurrentRelease(c.cfg.Current, release.Tag), nil
}

type commitChecker struct {
	github *GitHub
	cfg    update.GithubCommitCheck
}

func (c *commitChecker) CheckLatest(ctx context.Context, _ *update.Target) (update.Information, bool, error) {
	head, err := c.github.BranchHead(ctx, c.cfg.User, c.cfg.Repo, c.cfg.Branch)
	if err != nil {
		return update.Information{}, false, fmt.Errorf("%w: %w", update.ErrStrategyExecution, err)
	}

	info := update.Information{
		Local:  update.VersionName{Name: shortSHA(c.cfg.Current), Value: c.cfg.Current},
		Remote: update.VersionName{Name: shortSHA(head), Value: head},
	}

	return info.WithDefaults(), c.cfg.Current != "" && c.cfg.Current == head, nil
}

type gitChecker struct {
	exec executor.Executor
	cfg  update.GitCommitCheck
}

func (c *gitChecker) CheckLatest(ctx context.Context, _ *update.Target) (update.Information, bool, error) {
	if _, err := c.git(ctx, "fetch"); err != nil {
		return update.Information{}, false, err
	}

	local, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return update.Information{}, false, err
	}

	remote, err := c.git(ctx, "rev-parse", "@{upstream}")
	if err != nil {
		return update.Information{}, false, err
	}

	info := update.Information{
		Local:  update.VersionName{Name: shortSHA(local), Value: local},
		Remote: update.VersionName{Name: shortSHA(remote), Value: remote},
	}

	return info, local == remote, nil
}

func (c *gitChecker) git(ctx context.Context, args ...string) (string, error) {
	result, err := c.exec.Run(ctx, executor.Command{
		Args: append([]string{"git"}, args...),
		Dir:  c.cfg.CheckoutFolder,
	})
	if err != nil {
		return "", fmt.Errorf("%w: git %s: %w", update.ErrStrategyExecution, args[0], err)
	}

	if !result.Success() {
		return "", fmt.Errorf("%w: git %s exited with %d: %s",
			update.ErrStrategyExecution, args[0], result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return strings.TrimSpace(result.Stdout), nil
}

type commandChecker struct {
	exec executor.Executor
	cfg  update.CommandlineCheck
}

// CheckLatest runs the command: exit 0 means an update is available, exit 1
// means current. The first two output lines are the local and remote versions.
func (c *commandChecker) CheckLatest(ctx context.Context, _ *update.Target) (update.Information, bool, error) {
	result, err := c.exec.Run(ctx, executor.Command{Line: c.cfg.Command})
	if err != nil {
		return update.Information{}, false, fmt.Errorf("%w: %w", update.ErrStrategyExecution, err)
	}

	var isCurrent bool

	switch result.ExitCode {
	case 0:
	case 1:
		isCurrent = true
	default:
		return update.Information{}, false, fmt.Errorf("%w: check command exited with %d: %s",
			update.ErrStrategyExecution, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	var info update.Information

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	if len(lines) > 0 {
		local := strings.TrimSpace(lines[0])
		info.Local = update.VersionName{Name: local, Value: local}
	}

	if len(lines) > 1 {
		remote := strings.TrimSpace(lines[1])
		info.Remote = update.VersionName{Name: remote, Value: remote}
	}

	return info.WithDefaults(), isCurrent, nil
}

func shortSHA(sha string) string {
	if len(sha) > shortSHALength {
		return sha[:shortSHALength]
	}

	return sha
}
