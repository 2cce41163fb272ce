package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/swupdate/internal/api/ws"
	"github.com/oshokin/swupdate/internal/config"
	"github.com/oshokin/swupdate/internal/events"
	"github.com/oshokin/swupdate/internal/logger"
	"github.com/oshokin/swupdate/internal/service/common"
)

// Options configures the operator commands.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the gRPC address from config when specified.
	ServerAddress string
	// EventsAddress overrides the websocket address from config when specified.
	EventsAddress string
	// Targets limits the operation to the named targets.
	Targets []string
	// Force bypasses the version cache, or updates targets that look current.
	Force bool
	// Follow streams progress after an update was started.
	Follow bool
	// Out receives the human readable output; stdout when nil.
	Out io.Writer
}

var (
	// ErrRunFailed is returned when a followed update run ends with an error event.
	ErrRunFailed = errors.New("update run failed")
	// ErrRestartFailed is returned when the restart after a followed run failed.
	ErrRestartFailed = errors.New("restart failed, restart manually")
)

// restartGrace is how long a followed run waits for a restart outcome.
// A restart that takes the server down ends the stream earlier.
const restartGrace = time.Minute

// errNoEventsAddress is returned when progress is requested but no events endpoint is known.
var errNoEventsAddress = errors.New("no events address configured")

// Check prints the version state of the configured targets.
func Check(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "swupdate-check")

	client, _, err := connect(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	report, err := client.Check(ctx, opts.Targets, opts.Force)
	if err != nil {
		return err
	}

	return printReport(opts.out(), report)
}

// Update starts an update run and optionally follows its progress.
func Update(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "swupdate-update")

	client, cfg, err := connect(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	// Subscribe before starting so no event of the run is missed.
	var stream *ws.Stream

	if opts.Follow {
		if stream, err = openStream(ctx, opts, cfg); err != nil {
			return err
		}

		defer func() {
			_ = stream.Close()
		}()
	}

	plan, err := client.Update(ctx, actor, opts.Targets, opts.Force)
	if err != nil {
		return err
	}

	if err = printPlan(opts.out(), plan); err != nil {
		return err
	}

	if stream == nil {
		return nil
	}

	return follow(opts.out(), stream, restartGrace)
}

// Status prints whether an update run is active.
func Status(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "swupdate-status")

	client, _, err := connect(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	running, err := client.InProgress(ctx)
	if err != nil {
		return err
	}

	state := "idle"
	if running {
		state = "update in progress"
	}

	_, err = fmt.Fprintln(opts.out(), state)

	return err
}

// Watch prints progress events until ctx is canceled or the server goes away.
func Watch(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "swupdate-watch")

	cfg, err := loadSettings(opts)
	if err != nil {
		return err
	}

	address, err := eventsAddress(opts, cfg)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Watching update progress", "events_address", address)

	return ws.Watch(ctx, ws.URL(address), func(e events.Event) error {
		_, err := fmt.Fprintln(opts.out(), formatEvent(e))

		return err
	})
}

// follow prints events of one run until its final event. Once a restart
// begins, the stream ending or staying silent for grace means the restart went ahead.
func follow(out io.Writer, stream *ws.Stream, grace time.Duration) error {
	restarting := false

	for {
		e, err := stream.Next()
		if err != nil {
			if restarting || errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if _, err = fmt.Fprintln(out, formatEvent(e)); err != nil {
			return err
		}

		if e.Type == events.Restarting {
			restarting = true

			if err = stream.SetDeadline(time.Now().Add(grace)); err != nil {
				return err
			}
		}

		if !e.Type.Final() {
			continue
		}

		switch e.Type {
		case events.Error:
			return ErrRunFailed
		case events.RestartFailed:
			return ErrRestartFailed
		default:
			return nil
		}
	}
}

func connect(ctx context.Context, opts *Options) (*common.Client, *config.Config, error) {
	cfg, err := loadSettings(opts)
	if err != nil {
		return nil, nil, err
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ListenAddr
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return nil, nil, err
	}

	logger.DebugKV(ctx, "Connected to update server", "server_address", serverAddress)

	return client, cfg, nil
}

func openStream(ctx context.Context, opts *Options, cfg *config.Config) (*ws.Stream, error) {
	address, err := eventsAddress(opts, cfg)
	if err != nil {
		return nil, err
	}

	return ws.Connect(ctx, ws.URL(address))
}

func loadSettings(opts *Options) (*config.Config, error) {
	store := config.NewStore(opts.ConfigPath)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return store.Config()
}

func eventsAddress(opts *Options, cfg *config.Config) (string, error) {
	switch {
	case opts.EventsAddress != "":
		return opts.EventsAddress, nil
	case cfg.EventsAddr != "":
		return cfg.EventsAddr, nil
	default:
		return "", errNoEventsAddress
	}
}

func (o *Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}

	return o.Out
}
