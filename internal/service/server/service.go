package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/logger"
	"github.com/oshokin/swupdate/internal/service/resolver"
)

// targetCatalog is the catalog surface the read path needs.
type targetCatalog interface {
	Targets(ctx context.Context) map[string]*update.Target
	DisplayVersion(t *update.Target, info update.Information) string
}

// versionResolver resolves many targets at once.
type versionResolver interface {
	ResolveAll(ctx context.Context, targets map[string]*update.Target, force bool) map[string]resolver.Result
}

// runner starts update runs in the background.
type runner interface {
	Start(ctx context.Context, requested []string, force bool) (*update.Plan, error)
	InProgress() bool
}

// service adapts the update engine to the transport layer.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	catalog  targetCatalog
	resolver versionResolver
	runner   runner
	// jobActive reports whether the managed device is busy.
	jobActive func(ctx context.Context) (bool, error)
}

// Check resolves the requested targets, or every enabled target when none is named.
func (s *service) Check(ctx context.Context, targets []string, force bool) (*update.CheckReport, error) {
	selected, err := selectTargets(s.catalog.Targets(ctx), targets)
	if err != nil {
		return nil, err
	}

	results := s.resolver.ResolveAll(ctx, selected, force)

	report := &update.CheckReport{
		Status:  resolver.Status(results),
		Targets: make(map[string]update.TargetStatus, len(results)),
	}

	for name, result := range results {
		t := selected[name]

		report.Targets[name] = update.TargetStatus{
			DisplayName:    t.DisplayName,
			DisplayVersion: s.catalog.DisplayVersion(t, result.Info.Information),
			Info:           result.Info,
			Err:            result.Err,
		}
	}

	logger.DebugKV(ctx, "Versions checked", "status", report.Status, "targets", len(report.Targets), "force", force)

	return report, nil
}

// Update starts a run unless the device is busy.
func (s *service) Update(
	ctx context.Context,
	actor *update.Actor,
	targets []string,
	force bool,
) (*update.Plan, error) {
	if s.jobActive != nil {
		busy, err := s.jobActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("query job state: %w", err)
		}

		if busy {
			return nil, update.ErrJobActive
		}
	}

	if _, err := selectTargets(s.catalog.Targets(ctx), targets); err != nil {
		return nil, err
	}

	plan, err := s.runner.Start(ctx, targets, force)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Update run started", "actor", actor.String(), "order", plan.Order, "force", force)

	return plan, nil
}

// InProgress reports whether an update run is active.
func (s *service) InProgress() bool {
	return s.runner.InProgress()
}

// selectTargets narrows targets to the requested names.
// Naming an unknown target is a client error.
func selectTargets(targets map[string]*update.Target, requested []string) (map[string]*update.Target, error) {
	if len(requested) == 0 {
		return targets, nil
	}

	selected := make(map[string]*update.Target, len(requested))

	for _, name := range requested {
		key := strings.ToLower(strings.TrimSpace(name))

		t, ok := targets[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown target %q", update.ErrConfigurationInvalid, name)
		}

		selected[key] = t
	}

	return selected, nil
}
