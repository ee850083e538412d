package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/service/client"
	"github.com/oshokin/alarm-broadcast/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// allowMultiple disables the single-instance guard.
	allowMultiple bool

	// rootCmd represents the base command for running the workstation client.
	rootCmd = &cobra.Command{
		Use:   "alarm-client [server-address]",
		Short: "Receive alarm broadcasts on this workstation.",
		Long: `Connects to the alarm broadcast server and stays connected for as long as
the process lives: lost connections are re-dialed on a fixed interval, so a
rebooted server picks every workstation back up without operator action.

Server address can be provided as argument to override config (e.g., alarms.local:9999).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &client.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				AllowMultiple: allowMultiple,
			}

			return client.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-client CLI and exits with non-zero status on error.
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
	rootCmd.Flags().BoolVar(&allowMultiple, "allow-multiple", false, "allow more than one client instance on this host")
}
