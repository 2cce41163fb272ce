package updater

import (
	"fmt"
	"net/http"
	"os/exec"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/executor"
)

// DefaultPipCommand is used when neither the target nor the settings name one.
const DefaultPipCommand = "pip"

// Registry resolves update mechanisms for targets.
type Registry struct {
	exec       executor.Executor
	pipCommand string
	httpClient *http.Client
	lookPath   func(file string) (string, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithPipCommand sets the global package manager command.
func WithPipCommand(command string) Option {
	return func(r *Registry) {
		if command != "" {
			r.pipCommand = command
		}
	}
}

// WithHTTPClient sets the client used to download binaries.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = c
	}
}

// WithLookPath replaces the executable lookup.
func WithLookPath(lookPath func(file string) (string, error)) Option {
	return func(r *Registry) {
		r.lookPath = lookPath
	}
}

// NewRegistry creates a registry running commands through exec.
func NewRegistry(exec executor.Executor, opts ...Option) *Registry {
	r := &Registry{
		exec:       exec,
		pipCommand: DefaultPipCommand,
		httpClient: http.DefaultClient,
		lookPath:   osLookPath,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the updater selected by the target's mechanism marker.
// A target without a marker fails with update.ErrUnknownUpdateType.
//
//nolint:ireturn // Strategies are polymorphic by definition.
func (r *Registry) Resolve(t *update.Target) (update.Updater, error) {
	cfg, err := update.DecodeUpdate(t)
	if err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case update.ScriptUpdate:
		return &scriptUpdater{exec: r.exec, cfg: c}, nil
	case update.PackageUpdate:
		command := c.Command
		if command == "" {
			command = r.pipCommand
		}

		return &pipUpdater{exec: r.exec, command: command, spec: c.Spec, lookPath: r.lookPath}, nil
	case update.BinaryUpdate:
		return &binaryUpdater{client: r.httpClient, cfg: c}, nil
	case update.CustomUpdate:
		return c.Updater, nil
	default:
		return nil, fmt.Errorf("%w: %s", update.ErrUnknownUpdateType, cfg.Mechanism())
	}
}

func osLookPath(file string) (string, error) {
	return exec.LookPath(file)
}
