// Package resolver determines version facts for targets, serving them from the
// version cache while valid and asking the check strategies otherwise.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/logger"
)

// Aggregated check statuses.
const (
	StatusUpdatePossible  = "updatePossible"
	StatusUpdateAvailable = "updateAvailable"
	StatusCurrent         = "current"
)

// defaultWorkers bounds parallel resolution when not configured.
const defaultWorkers = 4

// CheckRegistry resolves check strategies.
type CheckRegistry interface {
	Resolve(t *update.Target) (update.Checker, error)
}

// UpdateRegistry resolves update strategies.
type UpdateRegistry interface {
	Resolve(t *update.Target) (update.Updater, error)
}

// Cache is the version cache surface used here.
type Cache interface {
	Lookup(target string, now time.Time) (update.VersionInfo, bool)
	Put(target string, info update.VersionInfo, now time.Time)
	SetTTL(ttl time.Duration)
	SaveIfDirty(ctx context.Context) error
}

// Resolver resolves version facts for targets.
type Resolver struct {
	checks  CheckRegistry
	updates UpdateRegistry
	cache   Cache
	now     func() time.Time
	ttl     func() time.Duration
	workers int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithTTL makes every read apply the time-to-live reported by ttl. A
// non-positive value leaves the cache's current time-to-live in place.
func WithTTL(ttl func() time.Duration) Option {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithWorkers bounds parallel resolution in ResolveAll.
func WithWorkers(workers int) Option {
	return func(r *Resolver) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

// New creates a resolver.
func New(checks CheckRegistry, updates UpdateRegistry, cache Cache, opts ...Option) *Resolver {
	r := &Resolver{
		checks:  checks,
		updates: updates,
		cache:   cache,
		now:     time.Now,
		workers: defaultWorkers,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the version facts of one target.
//
// A valid cache entry is returned verbatim unless force is set. Otherwise the
// check strategy runs and its result is cached; the caller flushes the cache.
// On a check failure the returned facts have UpdatePossible false and the
// error describes the failure. Failed facts are cached too.
func (r *Resolver) Resolve(ctx context.Context, t *update.Target, force bool) (update.VersionInfo, error) {
	r.refreshTTL()

	if !force {
		if info, ok := r.cache.Lookup(t.Name, r.now()); ok {
			return info, nil
		}
	}

	failed := update.VersionInfo{Information: update.Information{}.WithDefaults()}

	checker, err := r.checks.Resolve(t)
	if err != nil {
		r.cache.Put(t.Name, failed, r.now())

		return failed, fmt.Errorf("resolve check of %s: %w", t.Name, err)
	}

	information, isCurrent, err := r.check(ctx, checker, t)
	if err != nil {
		r.cache.Put(t.Name, failed, r.now())

		return failed, fmt.Errorf("check %s: %w", t.Name, err)
	}

	info := update.VersionInfo{
		Information:     information.WithDefaults(),
		UpdateAvailable: !information.IsZero() && !isCurrent,
		UpdatePossible:  r.updatePossible(ctx, t),
	}

	r.cache.Put(t.Name, info, r.now())

	return info, nil
}

// Result is the resolution of one target in a batch.
type Result struct {
	Info update.VersionInfo
	Err  error
}

// ResolveAll resolves every enabled target in parallel. Failures stay per
// target. The cache is flushed once at the end when it changed.
func (r *Resolver) ResolveAll(ctx context.Context, targets map[string]*update.Target, force bool) map[string]Result {
	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(targets))
		g       errgroup.Group
	)

	g.SetLimit(r.workers)

	for name, t := range targets {
		if !t.Enabled() {
			continue
		}

		g.Go(func() error {
			info, err := r.Resolve(ctx, t, force)
			if err != nil {
				logger.WarnKV(ctx, "Could not check target for updates", "target", name, "error", err)
			}

			mu.Lock()
			results[name] = Result{Info: info, Err: err}
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	if err := r.cache.SaveIfDirty(ctx); err != nil {
		logger.WarnKV(ctx, "Could not save version cache", "error", err)
	}

	return results
}

// Status aggregates a batch into one of StatusUpdatePossible,
// StatusUpdateAvailable or StatusCurrent.
func Status(results map[string]Result) string {
	status := StatusCurrent

	for _, result := range results {
		if !result.Info.UpdateAvailable {
			continue
		}

		if result.Info.UpdatePossible {
			return StatusUpdatePossible
		}

		status = StatusUpdateAvailable
	}

	return status
}

func (r *Resolver) refreshTTL() {
	if r.ttl == nil {
		return
	}

	if ttl := r.ttl(); ttl > 0 {
		r.cache.SetTTL(ttl)
	}
}

// check runs a strategy, turning a panic into a strategy execution error.
func (r *Resolver) check(ctx context.Context, checker update.Checker, t *update.Target) (info update.Information, isCurrent bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", update.ErrStrategyExecution, p)
		}
	}()

	return checker.CheckLatest(ctx, t)
}

// updatePossible reports whether the target's update mechanism can run.
// Any failure, including a panic, means false.
func (r *Resolver) updatePossible(ctx context.Context, t *update.Target) (possible bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.WarnKV(ctx, "Update mechanism check panicked", "target", t.Name, "panic", p)

			possible = false
		}
	}()

	updater, err := r.updates.Resolve(t)
	if err != nil {
		logger.DebugKV(ctx, "Target is not updatable", "target", t.Name, "reason", err)

		return false
	}

	return updater.CanApply(ctx, t)
}
