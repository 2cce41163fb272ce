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
	"github.com/oshokin/swupdate/internal/service/client"
	"github.com/oshokin/swupdate/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the gRPC address from the configuration.
	serverAddress string
	// eventsAddress overrides the websocket address from the configuration.
	eventsAddress string
	// logLevel is the minimum level of diagnostic logs.
	logLevel string
	// force bypasses the version cache or updates targets that look current.
	force bool
	// follow streams the progress of a started update.
	follow bool

	// rootCmd represents the base command of the operator CLI.
	rootCmd = &cobra.Command{
		Use:   "swupdate",
		Short: "Check for and apply software updates through swupdate-server.",
		Long: `Operator CLI for swupdate-server.

The server address is read from the configuration file unless --server is given.
Diagnostic logs go to stdout below the command output and are limited to
warnings by default.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLogger(logger.Logger().Desugar().WithOptions(logger.WithLevel(level)).Sugar())

			return nil
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check [targets...]",
		Short: "Show local and remote versions of the targets.",
		RunE: func(_ *cobra.Command, args []string) error {
			return runWithSignals(client.Check, args)
		},
	}

	updateCmd = &cobra.Command{
		Use:   "update [targets...]",
		Short: "Update the targets that have a new version.",
		Long: `Starts an update run on the server. Without targets every enabled target is
updated. With --follow the command prints the progress of the run and exits
non-zero when the run fails.`,
		RunE: func(_ *cobra.Command, args []string) error {
			return runWithSignals(client.Update, args)
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report whether an update run is active.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			return runWithSignals(client.Status, args)
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Stream update progress events until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			return runWithSignals(client.Watch, args)
		},
	}
)

// runWithSignals runs an operator command until it finishes or the process is interrupted.
func runWithSignals(run func(context.Context, *client.Options) error, targets []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return run(ctx, &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		EventsAddress: eventsAddress,
		Targets:       targets,
		Force:         force,
		Follow:        follow,
	})
}

// Execute runs the swupdate CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&serverAddress, "server", "s", "", "gRPC address of swupdate-server")
	flags.StringVarP(&eventsAddress, "events", "e", "", "websocket address of swupdate-server")
	flags.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	checkCmd.Flags().BoolVarP(&force, "force", "f", false, "ignore cached versions")
	updateCmd.Flags().BoolVarP(&force, "force", "f", false, "update targets even when they look current")
	updateCmd.Flags().BoolVarP(&follow, "follow", "w", false, "print progress until the run finishes")

	rootCmd.AddCommand(checkCmd, updateCmd, statusCmd, watchCmd)
}
