package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/service/updater"
	"github.com/oshokin/alarm-broadcast/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// releaseDirectory holds the built artifacts for publish.
	releaseDirectory string
	// releaseVersion overrides the manifest version for publish.
	releaseVersion string

	// rootCmd represents the base command for downloading and applying updates.
	rootCmd = &cobra.Command{
		Use:       "alarm-updater [client|server]",
		Short:     "Download and apply updates from the server",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"client", "server"},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.Options{
				ConfigPath: configPath,
				Role:       args[0],
			}

			return updater.Run(ctx, options)
		},
	}

	// publishCmd builds the release manifest for a directory of artifacts.
	publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Hash a release directory and write the update manifest",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.PublishOptions{
				Directory: releaseDirectory,
				Version:   releaseVersion,
			}

			return updater.RunPublish(ctx, options)
		},
	}
)

// Execute runs the alarm-updater CLI and exits with non-zero status on error.
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
	publishCmd.Flags().StringVarP(&releaseDirectory, "dir", "d", ".", "directory with the built artifacts")
	publishCmd.Flags().StringVar(&releaseVersion, "release-version", "", "manifest version, defaults to this binary's")

	rootCmd.AddCommand(publishCmd)
}
