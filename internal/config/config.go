package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/oshokin/swupdate/internal/domain/update"
)

// Config holds the typed global settings of the update engine.
type Config struct {
	// ListenAddr is the gRPC address of the update service.
	ListenAddr string `mapstructure:"listen_addr"`
	// EventsAddr is the HTTP address serving the /events websocket.
	EventsAddr string `mapstructure:"events_addr"`
	// DataFolder holds the version cache, the run marker and the update log.
	DataFolder string `mapstructure:"data_folder"`
	// CacheTTL is the version cache time-to-live in minutes.
	CacheTTL int `mapstructure:"cache_ttl"`
	// PipCommand is the package manager used when a target names none.
	PipCommand string `mapstructure:"pip_command"`
	// GithubToken authenticates GitHub API requests.
	GithubToken string `mapstructure:"github_token"`
	// GithubURL overrides the GitHub API base URL.
	GithubURL string `mapstructure:"github_url"`
	// Timeout bounds client RPC calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// ResolveWorkers bounds parallel version resolution.
	ResolveWorkers int `mapstructure:"resolve_workers"`
	// JobStateCommand reports the device job state: exit 0 busy, exit 1 idle.
	JobStateCommand string `mapstructure:"job_state_command"`
	// ContribFolder holds contributed target records, one YAML file per contributor.
	ContribFolder string `mapstructure:"contrib_folder"`
	// UpdateLog is the plain transcript of update output.
	UpdateLog string `mapstructure:"update_log"`
	// Commands are the restart commands per restart type.
	Commands Commands `mapstructure:"commands"`
}

// Commands holds the configured restart command lines.
type Commands struct {
	// ServerRestart restarts the host application (component restart).
	ServerRestart string `mapstructure:"server_restart"`
	// SystemRestart restarts the device (environment restart).
	SystemRestart string `mapstructure:"system_restart"`
}

const (
	// DefaultConfigFilename is the default settings file.
	DefaultConfigFilename = "swupdate.yaml"

	// DefaultListenAddr is the default gRPC address.
	DefaultListenAddr = "127.0.0.1:50061"

	// DefaultEventsAddr is the default websocket address.
	DefaultEventsAddr = "127.0.0.1:50062"

	// DefaultDataFolder is the default folder for runtime files.
	DefaultDataFolder = "swupdate-data"

	// DefaultCacheTTL is the default version cache TTL in minutes.
	DefaultCacheTTL = 24 * 60

	// DefaultTimeout is the default duration for RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultResolveWorkers is the default bound of parallel resolutions.
	DefaultResolveWorkers = 4

	// DefaultFilePermissions is the default permission of written files.
	DefaultFilePermissions = 0o600

	// DefaultFolderPermissions is the default permission of created folders.
	DefaultFolderPermissions = 0o750

	// VersionCacheFilename is the version cache file inside DataFolder.
	VersionCacheFilename = "version-cache.yaml"

	// MarkerFilename is the run marker file inside DataFolder.
	MarkerFilename = "update.lock"

	// UpdateLogFilename is the default update transcript inside DataFolder.
	UpdateLogFilename = "update-console.log"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddrRequired is returned when the gRPC address is missing.
	errListenAddrRequired = errors.New("listen address must be provided")
)

// Validate checks required fields and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddr == "" {
		return errListenAddrRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.EventsAddr != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.EventsAddr); err != nil {
			return fmt.Errorf("invalid events address: %w", err)
		}
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.ResolveWorkers <= 0 {
		cfg.ResolveWorkers = DefaultResolveWorkers
	}

	if cfg.DataFolder == "" {
		cfg.DataFolder = DefaultDataFolder
	}

	if cfg.UpdateLog == "" {
		cfg.UpdateLog = filepath.Join(cfg.DataFolder, UpdateLogFilename)
	}

	return nil
}

// CacheTTLDuration converts the configured minutes to a duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Minute
}

// CacheFile is the version cache path.
func (c *Config) CacheFile() string {
	return filepath.Join(c.DataFolder, VersionCacheFilename)
}

// MarkerFile is the run marker path.
func (c *Config) MarkerFile() string {
	return filepath.Join(c.DataFolder, MarkerFilename)
}

// RestartCommand returns the command line configured for a restart type, or "".
func (c *Config) RestartCommand(r update.RestartType) string {
	switch r {
	case update.RestartComponent:
		return c.Commands.ServerRestart
	case update.RestartEnvironment:
		return c.Commands.SystemRestart
	case update.RestartNone:
		return ""
	default:
		return ""
	}
}
