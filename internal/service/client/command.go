package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
)

// Options configures the workstation client.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress overrides the server address from config when specified.
	ServerAddress string
	// AllowMultiple disables the single-instance guard, used for testing.
	AllowMultiple bool
}

// Run connects to the broadcast server and consumes alarm events until the
// context is canceled. The connection is durable: lost links are re-dialed
// on a fixed interval for as long as the process lives.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-client")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// One alarm client per workstation: a second instance would double
	// every notification.
	if !opts.AllowMultiple {
		if err := ensureSingleInstance(); err != nil {
			return err
		}
	}

	manager := NewManager(serverAddress, consumeEvent(ctx))

	logger.InfoKV(ctx, "Waiting for alarms", "server", serverAddress)

	manager.Start(ctx)

	<-ctx.Done()
	logger.Info(ctx, "Context canceled, stopping client")
	manager.Stop()

	return nil
}

// consumeEvent returns the handler that surfaces a received alarm to the
// workstation. Presentation (window, tray, audio) is layered above this
// binary; the core consumer logs the fully self-describing event.
func consumeEvent(ctx context.Context) Handler {
	return func(event *alarm.Event, receivedAt time.Time) {
		logger.InfoKV(ctx, "ALARM",
			"kind", event.Kind,
			"name", event.Name,
			"message", event.Message,
			"admin", event.Admin,
			"at", event.When(receivedAt).Format(time.RFC3339),
			"color", event.Color,
			"bg_color", event.BackgroundColor,
			"text_color", event.TextColor,
			"icon", event.Icon,
			"has_background_image", event.BackgroundImage != "",
		)
	}
}

// ensureSingleInstance scans the process table for another copy of this
// executable.
func ensureSingleInstance() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	name := filepath.Base(executable)

	processes, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	for _, process := range processes {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == name {
			return fmt.Errorf("another %s instance is already running (pid %d)", name, process.Pid())
		}
	}

	return nil
}
