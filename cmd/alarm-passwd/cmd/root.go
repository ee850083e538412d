package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/service/passwd"
	"github.com/oshokin/alarm-broadcast/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// passwordFile overrides the credential file path and skips config.
	passwordFile string
	// explicitPassword sets the credential instead of generating one.
	explicitPassword string
	// passwordLength is the generated password length.
	passwordLength int
	// logLimit bounds the number of printed security events.
	logLimit int

	// rootCmd groups local credential maintenance commands.
	rootCmd = &cobra.Command{
		Use:   "alarm-passwd",
		Short: "Maintain the admin credential file.",
		Long: `Local maintenance of the admin credential file used by the alarm broadcast
server. Works directly on files: provisioning and resets do not require a
running server, which is exactly what you need when the password is lost.`,
	}

	// initCmd provisions the credential file for the first time.
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the credential file, refusing to overwrite one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return passwd.RunInit(ctx, passwdOptions(), cmd.OutOrStdout())
		},
	}

	// resetCmd replaces a lost or compromised credential.
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Replace the credential with a freshly generated one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return passwd.RunReset(ctx, passwdOptions(), cmd.OutOrStdout())
		},
	}

	// checkCmd verifies the credential file, for scripts and monitoring.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Verify that the credential file exists and is well formed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return passwd.RunCheck(ctx, passwdOptions(), cmd.OutOrStdout())
		},
	}

	// logCmd prints recent security events from the audit database.
	logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show recent security events from the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return passwd.RunLog(ctx, passwdOptions(), logLimit, cmd.OutOrStdout())
		},
	}
)

// passwdOptions collects the flag values into one options struct.
func passwdOptions() *passwd.Options {
	return &passwd.Options{
		ConfigPath:   configPath,
		PasswordFile: passwordFile,
		Length:       passwordLength,
		Password:     explicitPassword,
	}
}

// Execute runs the alarm-passwd CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&passwordFile, "file", "f", "", "credential file path, bypasses the configuration file")

	initCmd.Flags().StringVar(&explicitPassword, "password", "", "use this password instead of generating one")
	resetCmd.Flags().StringVar(&explicitPassword, "password", "", "use this password instead of generating one")
	resetCmd.Flags().IntVar(&passwordLength, "length", 0, "generated password length")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "maximum number of events to print")

	rootCmd.AddCommand(initCmd, resetCmd, checkCmd, logCmd)
}
