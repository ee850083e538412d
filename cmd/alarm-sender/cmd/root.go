package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/service/sender"
	"github.com/oshokin/alarm-broadcast/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// adminAddress overrides the admin plane address from config.
	adminAddress string
	// adminName is the operator identity stamped on broadcasts.
	adminName string
	// password is the admin credential.
	password string

	// Broadcast composition flags.
	preset              string
	message             string
	color               string
	icon                string
	name                string
	backgroundImagePath string

	// newPassword is the replacement credential for change-password.
	newPassword string

	// rootCmd groups the operator commands of the admin control plane.
	rootCmd = &cobra.Command{
		Use:   "alarm-sender",
		Short: "Trigger and inspect alarm broadcasts.",
		Long: `Operator tool for the alarm broadcast server: triggers alarms, lists
connected workstations and rotates the admin credential. Every command except
presets talks to the admin plane and requires the admin password.`,
	}

	// sendCmd triggers one alarm broadcast.
	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Broadcast one alarm to every connected client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return sender.RunSend(ctx, senderOptions(), cmd.OutOrStdout())
		},
	}

	// statusCmd prints the connected client roster.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "List connected clients and their last heartbeat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return sender.RunStatus(ctx, senderOptions(), cmd.OutOrStdout())
		},
	}

	// changePasswordCmd rotates the admin credential on the server.
	changePasswordCmd = &cobra.Command{
		Use:   "change-password",
		Short: "Rotate the admin credential on the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return sender.RunChangePassword(ctx, senderOptions(), cmd.OutOrStdout())
		},
	}

	// presetsCmd lists the predefined alarm classes, no server needed.
	presetsCmd = &cobra.Command{
		Use:   "presets",
		Short: "List the predefined alarm classes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sender.RunPresets(cmd.OutOrStdout())
		},
	}
)

// senderOptions collects the flag values into one options struct.
func senderOptions() *sender.Options {
	return &sender.Options{
		ConfigPath:          configPath,
		AdminAddress:        adminAddress,
		Admin:               adminName,
		Password:            password,
		Preset:              preset,
		Message:             message,
		Color:               color,
		Icon:                icon,
		Name:                name,
		BackgroundImagePath: backgroundImagePath,
		NewPassword:         newPassword,
	}
}

// Execute runs the alarm-sender CLI and exits with non-zero status on error.
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
	rootCmd.PersistentFlags().StringVarP(&adminAddress, "admin-addr", "a", "", "admin plane address override")
	rootCmd.PersistentFlags().StringVarP(&adminName, "admin", "u", "", "operator name recorded on broadcasts")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "admin password")

	sendCmd.Flags().StringVar(&preset, "preset", "", "predefined alarm class (see presets)")
	sendCmd.Flags().StringVarP(&message, "message", "m", "", "alarm body text")
	sendCmd.Flags().StringVar(&color, "color", "", "accent color for a custom alarm (e.g. #e74c3c)")
	sendCmd.Flags().StringVar(&icon, "icon", "", "title glyph for a custom alarm")
	sendCmd.Flags().StringVar(&name, "name", "", "display title for a custom alarm")
	sendCmd.Flags().StringVar(&backgroundImagePath, "background-image", "", "path to an image shipped with the alarm")

	changePasswordCmd.Flags().StringVar(&newPassword, "new-password", "", "replacement admin password")

	rootCmd.AddCommand(sendCmd, statusCmd, changePasswordCmd, presetsCmd)
}
