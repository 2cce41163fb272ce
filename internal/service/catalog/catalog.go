package catalog

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/logger"
)

// hostDisplayName is shown for the host target unless configured otherwise.
const hostDisplayName = "Host"

// Source supplies configured target records.
type Source interface {
	Checks() map[string]map[string]any
}

// HostBuild identifies the running host application build.
type HostBuild struct {
	Version string
	Commit  string
}

// Catalog assembles and caches the effective targets.
type Catalog struct {
	source       Source
	contributors []Contributor
	host         HostBuild

	mu      sync.Mutex
	targets map[string]*update.Target
}

// New creates a catalog.
func New(source Source, host HostBuild, contributors ...Contributor) *Catalog {
	return &Catalog{
		source:       source,
		contributors: contributors,
		host:         host,
	}
}

// Invalidate drops the cached targets; the next read rebuilds them.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.targets = nil
}

// Targets returns copies of every effective target keyed by name.
func (c *Catalog) Targets(ctx context.Context) map[string]*update.Target {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targets == nil {
		c.targets = c.build(ctx)
	}

	result := make(map[string]*update.Target, len(c.targets))
	for name, t := range c.targets {
		result[name] = t.Clone()
	}

	return result
}

// Target returns a copy of one effective target.
func (c *Catalog) Target(ctx context.Context, name string) (*update.Target, bool) {
	t, ok := c.Targets(ctx)[strings.ToLower(name)]

	return t, ok
}

// Names returns the sorted target names.
func (c *Catalog) Names(ctx context.Context) []string {
	return slices.Sorted(maps.Keys(c.Targets(ctx)))
}

func (c *Catalog) build(ctx context.Context) map[string]*update.Target {
	configured := c.source.Checks()
	targets := make(map[string]*update.Target, len(configured))

	for _, contributor := range c.contributors {
		contributions, err := contributor.Contribute(ctx)
		if err != nil {
			logger.WarnKV(ctx, "Skipping contributor", "contributor", contributor.Name(), "error", err)

			continue
		}

		for name, contribution := range contributions {
			name = strings.ToLower(name)

			record := contribution.Record
			if existing, ok := targets[name]; ok {
				record = update.MergeRecord(existing.Config, record)
			}

			if contribution.Checker != nil {
				if _, hasType := record[update.KeyType]; !hasType {
					record = update.MergeRecord(record, map[string]any{update.KeyType: string(update.CheckCustom)})
				}
			}

			t := update.NewTarget(name, record)
			t.CustomChecker = contribution.Checker
			t.CustomUpdater = contribution.Updater

			if existing, ok := targets[name]; ok {
				t.CustomChecker = firstNonNil(t.CustomChecker, existing.CustomChecker)
				t.CustomUpdater = firstNonNil(t.CustomUpdater, existing.CustomUpdater)
			}

			targets[name] = t
		}
	}

	for name, record := range configured {
		if existing, ok := targets[name]; ok {
			existing.Config = update.MergeRecord(existing.Config, record)

			continue
		}

		targets[name] = update.NewTarget(name, record)
	}

	for _, t := range targets {
		c.populate(t)
	}

	return targets
}

// populate fills presentation fields and the host's current version.
func (c *Catalog) populate(t *update.Target) {
	if t.Name == update.HostTarget {
		switch t.CheckType() {
		case update.CheckGithubRelease:
			t.Config[update.KeyCurrent] = c.host.Version
		case update.CheckGithubCommit:
			t.Config[update.KeyCurrent] = c.host.Commit
		case update.CheckGitCommit, update.CheckCommandline, update.CheckCustom:
		}
	}

	t.Current = t.String(update.KeyCurrent)

	t.DisplayName = t.String(update.KeyDisplayName)
	if t.DisplayName == "" {
		if t.Name == update.HostTarget {
			t.DisplayName = hostDisplayName
		} else {
			t.DisplayName = t.Name
		}
	}

	t.DisplayVersion = c.DisplayVersion(t, update.Information{})
}

// DisplayVersion renders a target's version for presentation.
// The display_version template may use {host_version}, {local_name} and
// {local_value}; without one the current version is shown.
func (c *Catalog) DisplayVersion(t *update.Target, info update.Information) string {
	template := t.String(update.KeyDisplayVersion)
	if template == "" {
		switch {
		case t.Current != "":
			return t.Current
		case info.Local.Name != "":
			return info.Local.Name
		default:
			return update.UnknownVersion
		}
	}

	local := info.WithDefaults().Local

	return strings.NewReplacer(
		"{host_version}", c.host.Version,
		"{local_name}", local.Name,
		"{local_value}", local.Value,
	).Replace(template)
}

func firstNonNil[T comparable](values ...T) T {
	var zero T

	for _, v := range values {
		if v != zero {
			return v
		}
	}

	return zero
}
