package versioncheck

import (
	"fmt"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

// Registry resolves check strategies for targets.
type Registry struct {
	github *GitHub
	exec   executor.Executor
}

// NewRegistry creates a registry over a GitHub client and a process executor.
func NewRegistry(github *GitHub, exec executor.Executor) *Registry {
	return &Registry{
		github: github,
		exec:   exec,
	}
}

// Resolve returns the checker selected by the target's check configuration.
// An unknown type fails with update.ErrUnknownCheckType.
//
//nolint:ireturn // Strategies are polymorphic by definition.
func (r *Registry) Resolve(t *update.Target) (update.Checker, error) {
	cfg, err := update.DecodeCheck(t)
	if err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case update.GithubReleaseCheck:
		return &releaseChecker{github: r.github, cfg: c}, nil
	case update.GithubCommitCheck:
		return &commitChecker{github: r.github, cfg: c}, nil
	case update.GitCommitCheck:
		return &gitChecker{exec: r.exec, cfg: c}, nil
	case update.CommandlineCheck:
		return &commandChecker{exec: r.exec, cfg: c}, nil
	case update.CustomCheck:
		return c.Checker, nil
	default:
		return nil, fmt.Errorf("%w: %s", update.ErrUnknownCheckType, cfg.CheckType())
	}
}
