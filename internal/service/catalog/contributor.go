package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/swupdate/internal/domain/update"
)

// Contribution is one contributed target.
type Contribution struct {
	// Record is merged under the configured record of the same target.
	Record map[string]any
	// Checker and Updater are optional strategy objects.
	Checker update.Checker
	Updater update.Updater
}

// Contributor supplies targets from outside the settings file.
type Contributor interface {
	Name() string
	Contribute(ctx context.Context) (map[string]Contribution, error)
}

// Static is a contributor with a fixed set of contributions.
type Static struct {
	name          string
	contributions map[string]Contribution
}

// NewStatic creates a programmatic contributor.
func NewStatic(name string, contributions map[string]Contribution) *Static {
	return &Static{name: name, contributions: contributions}
}

// Name implements Contributor.
func (s *Static) Name() string {
	return s.name
}

// Contribute implements Contributor.
func (s *Static) Contribute(context.Context) (map[string]Contribution, error) {
	return s.contributions, nil
}

// Dir loads contributions from every *.yaml file of a folder.
// Each file maps target names to records.
type Dir struct {
	path string
}

// NewDir creates a folder contributor.
func NewDir(path string) *Dir {
	return &Dir{path: filepath.Clean(path)}
}

// Name implements Contributor.
func (d *Dir) Name() string {
	return "dir:" + d.path
}

// Contribute implements Contributor. Files are read in name order; a later
// file replaces an earlier file's record of the same target.
func (d *Dir) Contribute(context.Context) (map[string]Contribution, error) {
	files, err := filepath.Glob(filepath.Join(d.path, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}

	sort.Strings(files)

	result := make(map[string]Contribution)

	for _, file := range files {
		contents, readErr := os.ReadFile(filepath.Clean(file))
		if readErr != nil {
			if errors.Is(readErr, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("read contribution %s: %w", file, readErr)
		}

		var records map[string]map[string]any
		if err = yaml.Unmarshal(contents, &records); err != nil {
			return nil, fmt.Errorf("decode contribution %s: %w", file, err)
		}

		for name, record := range records {
			result[strings.ToLower(name)] = Contribution{Record: record}
		}
	}

	return result, nil
}
