package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/oshokin/swupdate/internal/api/ws"
	"github.com/oshokin/swupdate/internal/config"
	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/events"
	"github.com/oshokin/swupdate/internal/executor"
	"github.com/oshokin/swupdate/internal/logger"
	"github.com/oshokin/swupdate/internal/repository/marker"
	"github.com/oshokin/swupdate/internal/repository/versioncache"
	"github.com/oshokin/swupdate/internal/service/catalog"
	"github.com/oshokin/swupdate/internal/service/orchestrator"
	"github.com/oshokin/swupdate/internal/service/resolver"
	"github.com/oshokin/swupdate/internal/updater"
	"github.com/oshokin/swupdate/internal/version"
	"github.com/oshokin/swupdate/internal/versioncheck"
)

// Host application release coordinates.
const (
	hostOwner = "oshokin"
	hostRepo  = "swupdate"
)

// app holds the wired components of a running server.
type app struct {
	service      *service
	hub          *ws.Hub
	orchestrator *orchestrator.Orchestrator
	closeLog     func() error
}

// newApp wires the update engine around store.
func newApp(ctx context.Context, store *config.Store, cfg *config.Config, exec executor.Executor) (*app, error) {
	githubOpts := []versioncheck.GitHubOption{
		versioncheck.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		versioncheck.WithLimiter(versioncheck.NewLimiter(cfg.GithubToken != "")),
	}

	if cfg.GithubToken != "" {
		githubOpts = append(githubOpts, versioncheck.WithAuthToken(cfg.GithubToken))
	}

	if cfg.GithubURL != "" {
		githubOpts = append(githubOpts, versioncheck.WithBaseURL(cfg.GithubURL))
	}

	gh, err := versioncheck.NewGitHub(githubOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}

	cache := versioncache.New(cfg.CacheFile(), cfg.CacheTTLDuration())
	cache.Load(ctx, update.HostTarget, version.Short())

	var contributors []catalog.Contributor
	if cfg.ContribFolder != "" {
		contributors = append(contributors, catalog.NewDir(cfg.ContribFolder))
	}

	targets := catalog.New(store, catalog.HostBuild{Version: version.Short(), Commit: version.Commit}, contributors...)

	checks := versioncheck.NewRegistry(gh, exec)
	updates := updater.NewRegistry(exec, updater.WithPipCommand(cfg.PipCommand))
	res := resolver.New(checks, updates, cache,
		resolver.WithWorkers(cfg.ResolveWorkers),
		resolver.WithTTL(cacheTTL(store)),
	)

	transcript, closeLog, err := logger.NewFile(cfg.UpdateLog)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub()
	sink := events.Multi{events.NewTranscript(transcript), hub}

	restartCommand := func(r update.RestartType) string {
		current, cfgErr := store.Config()
		if cfgErr != nil {
			logger.WarnKV(ctx, "Failed to read restart commands", "error", cfgErr)

			return ""
		}

		return current.RestartCommand(r)
	}

	orch := orchestrator.New(orchestrator.Options{
		Catalog:   targets,
		Config:    store,
		Resolver:  res,
		Updates:   updates,
		Cache:     cache,
		Marker:    marker.New(cfg.MarkerFile()),
		Restarter: orchestrator.NewCoordinator(exec, restartCommand, sink),
		Events:    sink,
	})

	jobStateCommand := func() string {
		current, cfgErr := store.Config()
		if cfgErr != nil {
			return cfg.JobStateCommand
		}

		return current.JobStateCommand
	}

	logger.InfoKV(ctx, "Update engine ready",
		"config", store.Path(),
		"data_folder", cfg.DataFolder,
		"cache_ttl", cache.TTL().String(),
		"targets", len(targets.Names(ctx)),
	)

	return &app{
		service: &service{
			catalog:   targets,
			resolver:  res,
			runner:    orch,
			jobActive: jobStateProbe(exec, jobStateCommand),
		},
		hub:          hub,
		orchestrator: orch,
		closeLog:     closeLog,
	}, nil
}

// cacheTTL reads the time-to-live from the current configuration, so an
// edited cache_ttl applies after the next reload. Zero keeps the last value.
func cacheTTL(store *config.Store) func() time.Duration {
	return func() time.Duration {
		current, err := store.Config()
		if err != nil {
			return 0
		}

		return current.CacheTTLDuration()
	}
}

// Close releases the update log.
func (a *app) Close() error {
	return a.closeLog()
}

// hostDefaults is the built-in record of the host application: checked
// against its GitHub releases and replaced in place from the release binary.
func hostDefaults() map[string]map[string]any {
	record := map[string]any{
		update.KeyType:    string(update.CheckGithubRelease),
		"user":            hostOwner,
		"repo":            hostRepo,
		update.KeyRestart: string(update.RestartComponent),
	}

	if exe, err := os.Executable(); err == nil {
		record[update.KeyBinary] = map[string]any{
			"url": fmt.Sprintf(
				"https://github.com/%s/%s/releases/download/{target_version}/swupdate-server_%s_%s",
				hostOwner, hostRepo, runtime.GOOS, runtime.GOARCH,
			),
			"path": exe,
		}
	}

	return map[string]map[string]any{update.HostTarget: record}
}
