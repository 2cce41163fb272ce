package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/events"
	"github.com/oshokin/swupdate/internal/logger"
)

// ErrUpdateInProgress is returned when another run is active.
var ErrUpdateInProgress = errors.New("update already in progress")

// Catalog supplies the effective targets.
type Catalog interface {
	Targets(ctx context.Context) map[string]*update.Target
	Invalidate()
}

// ConfigStore is the durable configuration touched during a run.
type ConfigStore interface {
	Reload() error
	Save() error
	SetCheckField(name, field string, value any)
}

// Resolver resolves version facts of one target.
type Resolver interface {
	Resolve(ctx context.Context, t *update.Target, force bool) (update.VersionInfo, error)
}

// UpdateRegistry resolves update strategies.
type UpdateRegistry interface {
	Resolve(t *update.Target) (update.Updater, error)
}

// Cache is the version cache surface used by runs.
type Cache interface {
	Invalidate(target string)
	Save(ctx context.Context) error
}

// Marker guards runs across processes.
type Marker interface {
	Acquire(ctx context.Context) (func(), error)
}

// Restarter performs the restart after a clean run.
type Restarter interface {
	Restart(ctx context.Context, r update.RestartType, results map[string]any) error
}

// Options are the collaborators of an Orchestrator.
type Options struct {
	Catalog   Catalog
	Config    ConfigStore
	Resolver  Resolver
	Updates   UpdateRegistry
	Cache     Cache
	Marker    Marker
	Restarter Restarter
	Events    events.Sink
}

// Orchestrator runs updates. It is safe for concurrent use; at most one run
// is active at a time.
type Orchestrator struct {
	opts       Options
	inProgress atomic.Bool
	wg         sync.WaitGroup
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Events == nil {
		opts.Events = events.Discard
	}

	return &Orchestrator{opts: opts}
}

// InProgress reports whether a run is active.
func (o *Orchestrator) InProgress() bool {
	return o.inProgress.Load()
}

// Start validates a run request and executes it on a background worker.
// The outcome is delivered through the event sink only.
func (o *Orchestrator) Start(ctx context.Context, requested []string, force bool) (*update.Plan, error) {
	if !o.inProgress.CompareAndSwap(false, true) {
		return nil, ErrUpdateInProgress
	}

	release, err := o.acquire(ctx)
	if err != nil {
		o.inProgress.Store(false)

		return nil, err
	}

	targets := o.opts.Catalog.Targets(ctx)
	plan := planFor(targets, requested)

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()
		defer o.inProgress.Store(false)
		defer release()

		if _, runErr := o.run(runCtx, plan, force); runErr != nil {
			logger.ErrorKV(runCtx, "Update run aborted", "error", runErr)
		}
	}()

	return plan, nil
}

// Run executes a run synchronously and returns its report.
func (o *Orchestrator) Run(ctx context.Context, requested []string, force bool) (*update.RunReport, error) {
	if !o.inProgress.CompareAndSwap(false, true) {
		return nil, ErrUpdateInProgress
	}

	defer o.inProgress.Store(false)

	release, err := o.acquire(ctx)
	if err != nil {
		return nil, err
	}

	defer release()

	plan := planFor(o.opts.Catalog.Targets(ctx), requested)

	return o.run(ctx, plan, force)
}

// Wait blocks until background runs have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) acquire(ctx context.Context) (func(), error) {
	if o.opts.Marker == nil {
		return func() {}, nil
	}

	release, err := o.opts.Marker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateInProgress, err)
	}

	return release, nil
}

// planFor intersects the requested names with the enabled targets.
// Without a request every enabled target is included. The host target
// goes first, the rest in name order.
func planFor(targets map[string]*update.Target, requested []string) *update.Plan {
	wanted := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		wanted[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	plan := &update.Plan{Names: make(map[string]string, len(targets))}

	for _, name := range slices.Sorted(maps.Keys(targets)) {
		t := targets[name]
		if !t.Enabled() {
			continue
		}

		if len(wanted) > 0 {
			if _, ok := wanted[name]; !ok {
				continue
			}
		}

		plan.Names[name] = t.DisplayName

		if name == update.HostTarget {
			plan.Order = append([]string{name}, plan.Order...)
		} else {
			plan.Order = append(plan.Order, name)
		}
	}

	return plan
}

// run updates every planned target and finishes the run.
func (o *Orchestrator) run(ctx context.Context, plan *update.Plan, force bool) (report *update.RunReport, err error) {
	ctx = logger.WithName(ctx, "orchestrator")
	report = &update.RunReport{Restart: update.RestartNone}

	// The configuration is saved on every exit, a panicking run included.
	saved := false

	defer func() {
		p := recover()
		if p == nil {
			return
		}

		err = fmt.Errorf("update run panicked: %v", p)

		if !saved {
			if saveErr := o.opts.Config.Save(); saveErr != nil {
				logger.ErrorKV(ctx, "Failed to save configuration", "error", saveErr)
			}
		}

		o.opts.Events.Publish(ctx, events.NewResult(events.Error, report.Results()))
	}()

	logger.InfoKV(ctx, "Update run started", "targets", plan.Order, "force", force)

	for _, name := range plan.Order {
		// Targets may have changed through a configuration reload.
		t, ok := o.opts.Catalog.Targets(ctx)[name]
		if !ok || !t.Enabled() {
			report.Add(update.Outcome{Target: name, Status: update.OutcomeSkipped, Reason: "disabled"})

			continue
		}

		outcome := o.updateTarget(ctx, t, force)
		report.Add(outcome)

		if outcome.Status == update.OutcomeSuccess {
			restart, valid := t.RestartRequirement()
			if !valid {
				logger.WarnKV(ctx, "Ignoring unknown restart type", "target", name, "restart", t.String(update.KeyRestart))
			}

			report.Restart = report.Restart.Combine(restart)
		}
	}

	o.opts.Catalog.Invalidate()

	saved = true
	if err = o.opts.Config.Save(); err != nil {
		o.opts.Events.Publish(ctx, events.NewResult(events.Error, report.Results()))

		return report, fmt.Errorf("save configuration: %w", err)
	}

	results := report.Results()

	if report.OverallError {
		logger.WarnKV(ctx, "Update run failed", "results", results)
		o.opts.Events.Publish(ctx, events.NewResult(events.Error, results))

		return report, nil
	}

	if err = o.opts.Cache.Save(ctx); err != nil {
		o.opts.Events.Publish(ctx, events.NewResult(events.Error, results))

		return report, fmt.Errorf("save version cache: %w", err)
	}

	logger.InfoKV(ctx, "Update run succeeded", "results", results, "restart", report.Restart)

	if !report.Restart.Required() {
		o.opts.Events.Publish(ctx, events.NewResult(events.Success, results))

		return report, nil
	}

	if o.opts.Restarter == nil {
		return report, nil
	}

	if restartErr := o.opts.Restarter.Restart(ctx, report.Restart, results); restartErr != nil {
		logger.WarnKV(ctx, "Restart needs attention", "error", restartErr)
	}

	return report, nil
}

// updateTarget runs the update procedure of one target.
func (o *Orchestrator) updateTarget(ctx context.Context, t *update.Target, force bool) update.Outcome {
	ctx = logger.WithKV(ctx, "target", t.Name)
	outcome := update.Outcome{Target: t.Name}

	info, err := o.opts.Resolver.Resolve(ctx, t, false)
	if err != nil {
		logger.WarnKV(ctx, "Could not check target", "error", err)
	}

	if !info.UpdateAvailable && !force {
		outcome.Status = update.OutcomeSkipped
		outcome.Reason = "current"

		if err != nil {
			outcome.Reason = err.Error()
		}

		return outcome
	}

	if !info.UpdatePossible {
		logger.Warn(ctx, "Update mechanism is not fully configured, skipping")

		outcome.Status = update.OutcomeSkipped
		outcome.Reason = "not possible"

		return outcome
	}

	targetVersion := info.Information.Remote.Value
	versionName := info.Information.Remote.Name
	outcome.Version = targetVersion

	updater, err := o.opts.Updates.Resolve(t)
	if err != nil {
		outcome.Status = update.OutcomeFailed
		outcome.Reason = err.Error()
		outcome.Unignorable = true
		o.opts.Events.Publish(ctx, events.NewUpdateFailed(t.Name, targetVersion, versionName, outcome.Reason))

		return outcome
	}

	o.opts.Events.Publish(ctx, events.NewUpdating(t.Name, targetVersion, versionName))
	logger.InfoKV(ctx, "Updating", "version", targetVersion)

	payload, err := o.apply(ctx, updater, t, targetVersion)

	// The facts of an attempted target are stale either way.
	o.opts.Cache.Invalidate(t.Name)

	if err != nil {
		outcome.Status = update.OutcomeFailed
		outcome.Reason = failureReason(err)
		outcome.Unignorable = !t.Ignorable()

		logger.ErrorKV(ctx, "Update failed", "error", err, "ignorable", t.Ignorable())
		o.opts.Events.Publish(ctx, events.NewUpdateFailed(t.Name, targetVersion, versionName, outcome.Reason))

		return outcome
	}

	if reloadErr := o.opts.Config.Reload(); reloadErr != nil {
		logger.WarnKV(ctx, "Could not reload configuration", "error", reloadErr)
	}

	o.opts.Catalog.Invalidate()

	if t.CheckType() == update.CheckGithubCommit {
		o.opts.Config.SetCheckField(t.Name, update.KeyCurrent, targetVersion)
	}

	logger.InfoKV(ctx, "Update succeeded", "version", targetVersion)

	outcome.Status = update.OutcomeSuccess
	outcome.Payload = payload

	return outcome
}

// apply runs a strategy, streaming its output and turning a panic into an error.
func (o *Orchestrator) apply(ctx context.Context, u update.Updater, t *update.Target, targetVersion string) (payload any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", update.ErrStrategyExecution, p)
		}
	}()

	log := func(stream string, lines ...string) {
		o.opts.Events.Publish(ctx, events.NewLogLines(t.Name, stream, lines...))
	}

	return u.Apply(ctx, t, targetVersion, log)
}

// failureReason is the structured payload of a failure, or ReasonUnknown.
func failureReason(err error) any {
	var updateErr *update.UpdateError
	if errors.As(err, &updateErr) && updateErr.Data != nil {
		return updateErr.Data
	}

	return update.ReasonUnknown
}
