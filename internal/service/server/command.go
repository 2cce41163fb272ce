package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/swupdate/internal/api/grpc/softwareupdate"
	"github.com/oshokin/swupdate/internal/api/ws"
	"github.com/oshokin/swupdate/internal/config"
	"github.com/oshokin/swupdate/internal/executor"
	"github.com/oshokin/swupdate/internal/logger"
)

// Options controls the swupdate-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address from the settings.
	ListenAddress string
	// EventsAddress overrides the websocket listen address from the settings.
	EventsAddress string
}

// readHeaderTimeout bounds slow websocket handshakes.
const readHeaderTimeout = 10 * time.Second

// Run starts the gRPC and events servers and blocks until context is canceled
// or a server stops. An update run in flight is allowed to finish first.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "swupdate-server")

	store := config.NewStore(opts.ConfigPath)
	store.SetDefaultChecks(hostDefaults())

	if err := store.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	cfg, err := store.Config()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Command line arguments override the settings file.
	if opts.ListenAddress != "" {
		cfg.ListenAddr = opts.ListenAddress
	}

	if opts.EventsAddress != "" {
		cfg.EventsAddr = opts.EventsAddress
	}

	if err = os.MkdirAll(cfg.DataFolder, config.DefaultFolderPermissions); err != nil {
		return fmt.Errorf("create data folder: %w", err)
	}

	a, err := newApp(ctx, store, cfg, executor.New())
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close update log", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveGRPC(gctx, cfg.ListenAddr, a.service)
	})

	if cfg.EventsAddr != "" {
		g.Go(func() error {
			return serveEvents(gctx, cfg.EventsAddr, a.hub)
		})
	}

	err = g.Wait()

	if a.orchestrator.InProgress() {
		logger.Info(ctx, "Waiting for the update run to finish")
	}

	a.orchestrator.Wait()

	return err
}

// serveGRPC serves the update API on address until ctx is done.
func serveGRPC(ctx context.Context, address string, svc api.Service) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterSoftwareUpdateServer(grpcServer, api.NewServer(svc))

	logger.InfoKV(ctx, "Update server listening", "listen_address", address)

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// serveEvents serves the progress websocket on address until ctx is done.
func serveEvents(ctx context.Context, address string, hub *ws.Hub) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	srv := &http.Server{
		Handler:           hub.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Events server listening", "listen_address", address, "path", ws.EventsPath)

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		logger.Info(ctx, "Shutting down events server")

		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve events: %w", err)
	}

	<-done

	return nil
}
