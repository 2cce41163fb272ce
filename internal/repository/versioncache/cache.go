package versioncache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/logger"
)

// Repository is the cache surface the resolver and the orchestrator depend on.
type Repository interface {
	Lookup(target string, now time.Time) (update.VersionInfo, bool)
	Put(target string, info update.VersionInfo, now time.Time)
	Invalidate(target string)
	SaveIfDirty(ctx context.Context) error
	Save(ctx context.Context) error
}

// Cache is the in-memory version cache with file persistence.
//
// Cache tolerates concurrent readers and writers. File I/O runs outside the lock.
type Cache struct {
	// path is the filesystem location of the YAML cache file.
	path string
	// saveMu serializes writers of the file.
	saveMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]update.CacheEntry
	ttl     time.Duration
	dirty   bool
	// generation counts mutations so a save does not clear newer dirt.
	generation uint64
}

// record is the persisted form of one entry.
type record struct {
	Timestamp       int64              `yaml:"timestamp"`
	Information     update.Information `yaml:"information"`
	UpdateAvailable bool               `yaml:"update_available"`
	UpdatePossible  bool               `yaml:"update_possible"`
}

// ErrIdentityMismatch is logged when a cache file was written by another host build.
var ErrIdentityMismatch = errors.New("cache was produced by a different host version")

// New creates an empty cache persisted at path.
func New(path string, ttl time.Duration) *Cache {
	return &Cache{
		path:    filepath.Clean(path),
		entries: make(map[string]update.CacheEntry),
		ttl:     ttl,
	}
}

// TTL returns the current time-to-live.
func (c *Cache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ttl
}

// SetTTL changes the time-to-live. It applies to the next lookup.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ttl = ttl
}

// Get returns the stored entry regardless of its age.
func (c *Cache) Get(target string) (update.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[target]

	return entry, ok
}

// Lookup returns the cached facts of a target when the entry is still valid at now.
func (c *Cache) Lookup(target string, now time.Time) (update.VersionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[target]
	if !ok || !entry.Valid(now, c.ttl) {
		return update.VersionInfo{}, false
	}

	return entry.Info, true
}

// Put stores fresh facts for a target stamped with now and marks the cache dirty.
func (c *Cache) Put(target string, info update.VersionInfo, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[target] = update.CacheEntry{
		// Stored with second precision, the same as on disk.
		Timestamp: time.Unix(now.Unix(), 0),
		Info:      info,
	}
	c.touch()
}

// Invalidate drops the entry of a target.
func (c *Cache) Invalidate(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[target]; !ok {
		return
	}

	delete(c.entries, target)
	c.touch()
}

// Dirty reports whether the cache has unsaved mutations.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.dirty
}

// Snapshot returns a copy of every entry.
func (c *Cache) Snapshot() map[string]update.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.entries)
}

// Load replaces the in-memory entries with the persisted ones.
// Any read or parse problem and any identity mismatch against hostVersion
// result in an empty cache and a warning. Load never fails.
func (c *Cache) Load(ctx context.Context, hostTarget, hostVersion string) {
	entries, err := c.read(hostTarget, hostVersion)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Discarding version cache", "path", c.path, "error", err)
		}

		entries = make(map[string]update.CacheEntry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = entries
	c.dirty = false
	c.generation++
}

// Save writes every entry to disk atomically.
func (c *Cache) Save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	snapshot := maps.Clone(c.entries)
	generation := c.generation
	c.mu.RUnlock()

	if err := c.write(snapshot); err != nil {
		return err
	}

	c.mu.Lock()
	if c.generation == generation {
		c.dirty = false
	}
	c.mu.Unlock()

	logger.DebugKV(ctx, "Version cache saved", "path", c.path, "entries", len(snapshot))

	return nil
}

// SaveIfDirty saves only when there are unsaved mutations.
func (c *Cache) SaveIfDirty(ctx context.Context) error {
	if !c.Dirty() {
		return nil
	}

	return c.Save(ctx)
}

func (c *Cache) touch() {
	c.dirty = true
	c.generation++
}

func (c *Cache) read(hostTarget, hostVersion string) (map[string]update.CacheEntry, error) {
	contents, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read version cache: %w", err)
	}

	var records map[string]record
	if err = yaml.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decode version cache: %w", err)
	}

	host, ok := records[hostTarget]
	if !ok || host.Information.Local.Value != hostVersion {
		return nil, ErrIdentityMismatch
	}

	entries := make(map[string]update.CacheEntry, len(records))
	for target, r := range records {
		entries[target] = update.CacheEntry{
			Timestamp: time.Unix(r.Timestamp, 0),
			Info: update.VersionInfo{
				Information:     r.Information,
				UpdateAvailable: r.UpdateAvailable,
				UpdatePossible:  r.UpdatePossible,
			},
		}
	}

	return entries, nil
}

func (c *Cache) write(entries map[string]update.CacheEntry) error {
	records := make(map[string]record, len(entries))
	for target, entry := range entries {
		records[target] = record{
			Timestamp:       entry.Timestamp.Unix(),
			Information:     entry.Info.Information,
			UpdateAvailable: entry.Info.UpdateAvailable,
			UpdatePossible:  entry.Info.UpdatePossible,
		}
	}

	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode version cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache folder: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary cache file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write temporary cache file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync temporary cache file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary cache file: %w", err)
	}

	if err = os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace version cache: %w", err)
	}

	return nil
}
