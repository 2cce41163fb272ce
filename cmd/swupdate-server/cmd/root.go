package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/swupdate/internal/config"
	"github.com/oshokin/swupdate/internal/logger"
	"github.com/oshokin/swupdate/internal/service/server"
	"github.com/oshokin/swupdate/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// eventsAddress overrides the websocket listen address.
	eventsAddress string
	// logLevel is the minimum level of console logs.
	logLevel string

	// rootCmd represents the base command for running the update server.
	rootCmd = &cobra.Command{
		Use:   "swupdate-server [listen-address]",
		Short: "Run the software update server.",
		Long: `Starts the gRPC update server that checks the configured targets for new
versions and applies updates on request.

Progress of update runs is streamed to observers over a websocket served on the
events address. The listen address can be provided as argument to override the
configuration file (e.g., 127.0.0.1:50061, :9090).

Settings can also be supplied through SWUPDATE_* environment variables.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				EventsAddress: eventsAddress,
			})
		},
	}
)

// Execute runs the swupdate-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&eventsAddress, "events", "e", "", "listen address of the progress websocket")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}
