// Package marker implements the cross-process update run marker.
//
// A marker is a file holding the PID of the process running an update.
// It is stale when that process no longer exists.
package marker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/swupdate/internal/logger"
)

// ErrHeld is returned when a live process already holds the marker.
var ErrHeld = errors.New("update marker is held by another process")

// ProcessFinder reports whether a PID belongs to a running process.
type ProcessFinder func(pid int) (bool, error)

// File is a PID marker at a fixed path.
type File struct {
	path string
	pid  int
	find ProcessFinder
}

// Option customizes a marker.
type Option func(*File)

// WithProcessFinder replaces the process table lookup.
func WithProcessFinder(find ProcessFinder) Option {
	return func(f *File) {
		f.find = find
	}
}

// WithPID overrides the PID written into the marker.
func WithPID(pid int) Option {
	return func(f *File) {
		f.pid = pid
	}
}

// New creates a marker at path owned by the current process.
func New(path string, opts ...Option) *File {
	f := &File{
		path: filepath.Clean(path),
		pid:  os.Getpid(),
		find: processRunning,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Path returns the marker location.
func (f *File) Path() string {
	return f.path
}

// Held reports whether a live process other than this one holds the marker.
func (f *File) Held(ctx context.Context) bool {
	owner, err := f.owner()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to read update marker", "path", f.path, "error", err)
		}

		return false
	}

	if owner == f.pid {
		return false
	}

	running, err := f.find(owner)
	if err != nil {
		logger.WarnKV(ctx, "Unable to inspect process table", "error", err)

		return true
	}

	return running
}

// Acquire creates the marker. It fails with ErrHeld when a live process
// holds it; a stale marker is removed and then replaced.
// The returned function removes the marker.
func (f *File) Acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return nil, fmt.Errorf("create marker folder: %w", err)
	}

	for range 2 {
		err := f.create()
		if err == nil {
			logger.DebugKV(ctx, "Update marker acquired", "path", f.path, "pid", f.pid)

			return f.release, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		if f.Held(ctx) {
			return nil, ErrHeld
		}

		logger.InfoKV(ctx, "Removing stale update marker", "path", f.path)

		if err = os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale update marker: %w", err)
		}
	}

	return nil, ErrHeld
}

// create links a fully written PID file into place, so the marker
// never exists without its owner.
func (f *File) create() error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".update-marker-*")
	if err != nil {
		return fmt.Errorf("create update marker: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err = tmp.WriteString(strconv.Itoa(f.pid)); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write update marker: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write update marker: %w", err)
	}

	return os.Link(tmp.Name(), f.path)
}

func (f *File) release() {
	if owner, err := f.owner(); err == nil && owner == f.pid {
		_ = os.Remove(f.path)
	}
}

func (f *File) owner() (int, error) {
	contents, err := os.ReadFile(f.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return 0, fmt.Errorf("parse update marker: %w", err)
	}

	return pid, nil
}

func processRunning(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}
