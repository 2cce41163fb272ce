package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/oshokin/swupdate/internal/domain/update"
)

const (
	keyDelimiter = "::"
	envPrefix    = "SWUPDATE"
	checksKey    = "checks"
)

// Store is the mutable configuration source backed by a YAML file.
//
// Store is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	v    *viper.Viper
	// defaultChecks are merged under user records and never persisted.
	defaultChecks map[string]map[string]any
	// pending are edits made since the last Save, keyed by full viper key.
	pending map[string]any
}

// NewStore creates a store over the settings file at path. Call Load before use.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultConfigFilename
	}

	return &Store{
		path:    filepath.Clean(path),
		v:       newViper(),
		pending: make(map[string]any),
	}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file leaves the defaults in place.
func (s *Store) Load() error {
	v := newViper()
	if err := readFile(v, s.path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range s.pending {
		v.Set(key, value)
	}

	s.v = v

	return nil
}

// Reload re-reads the settings file to pick up external edits.
// Pending edits are re-applied on top.
func (s *Store) Reload() error {
	return s.Load()
}

// Config returns a validated snapshot of the global settings.
func (s *Store) Config() (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaultChecks replaces the built-in target records.
func (s *Store) SetDefaultChecks(checks map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaultChecks = make(map[string]map[string]any, len(checks))
	for name, record := range checks {
		s.defaultChecks[strings.ToLower(name)] = update.MergeRecord(record, nil)
	}
}

// Checks returns every configured target record with defaults merged under it.
func (s *Store) Checks() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]map[string]any, len(s.defaultChecks))
	for name, record := range s.defaultChecks {
		result[name] = update.MergeRecord(record, nil)
	}

	// AllSettings merges every layer leaf by leaf, Get would let the
	// override layer shadow whole subtrees of the file.
	userChecks, _ := s.v.AllSettings()[checksKey].(map[string]any)
	for name, raw := range userChecks {
		record, ok := raw.(map[string]any)
		if !ok {
			record = map[string]any{}
		}

		result[name] = update.MergeRecord(result[name], record)
	}

	return result
}

// Check returns the effective record of one target.
func (s *Store) Check(name string) (map[string]any, bool) {
	record, ok := s.Checks()[strings.ToLower(name)]

	return record, ok
}

// SetCheckField records an edit of a target's stored record.
// The edit is visible immediately and written by the next Save.
func (s *Store) SetCheckField(name, field string, value any) {
	key := strings.Join([]string{checksKey, strings.ToLower(name), field}, keyDelimiter)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = value
	s.v.Set(key, value)
}

// Dirty reports whether there are edits waiting for Save.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.pending) > 0
}

// Save writes pending edits into the settings file.
// The file is re-read first so that external edits are kept, and neither
// defaults nor environment overrides end up in it.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	file := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	file.SetConfigType("yaml")

	if err := readFile(file, s.path); err != nil {
		return err
	}

	for key, value := range s.pending {
		file.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), DefaultFolderPermissions); err != nil {
		return fmt.Errorf("create settings folder: %w", err)
	}

	if err := file.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	clear(s.pending)

	return nil
}

// Pending returns a copy of the unsaved edits.
func (s *Store) Pending() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.pending)
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("events_addr", DefaultEventsAddr)
	v.SetDefault("data_folder", DefaultDataFolder)
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("resolve_workers", DefaultResolveWorkers)
	v.SetDefault("pip_command", "")
	v.SetDefault("github_token", "")
	v.SetDefault("github_url", "")
	v.SetDefault("job_state_command", "")
	v.SetDefault("contrib_folder", "")
	v.SetDefault("update_log", "")
	v.SetDefault("commands::server_restart", "")
	v.SetDefault("commands::system_restart", "")

	return v
}

func readFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("read settings: %w", err)
}
