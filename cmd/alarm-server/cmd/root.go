package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/service/server"
	"github.com/oshokin/alarm-broadcast/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// adminAddress overrides the admin control plane address.
	adminAddress string
	// passwordFile overrides the credential file path.
	passwordFile string

	// rootCmd represents the base command for running the broadcast server.
	rootCmd = &cobra.Command{
		Use:   "alarm-server [listen-address]",
		Short: "Run the alarm broadcast server.",
		Long: `Starts the alarm broadcast server: clients connect over TCP and receive
alarm events plus periodic liveness probes; operators trigger broadcasts
through the password-protected admin plane.

The server listens on the specified address or uses settings from configuration file.
Only the port from ServerAddress config is used for listening (e.g., :9999).
Listen address can be provided as argument to override config (e.g., :9090, 0.0.0.0:9999).
The server refuses to start without a credential file; create one with alarm-passwd init.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				AdminAddress:  adminAddress,
				PasswordFile:  passwordFile,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-server CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&adminAddress, "admin-addr", "a", "", "admin plane listen address override")
	rootCmd.Flags().StringVarP(&passwordFile, "password-file", "p", "", "path to the admin credential file")
}
