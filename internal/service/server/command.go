package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/creds"
	"github.com/oshokin/alarm-broadcast/internal/logger"
	"github.com/oshokin/alarm-broadcast/internal/repository/history"
)

// Options controls the alarm-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the
	// broadcast listener.
	ListenAddress string
	// AdminAddress provides an optional listen address override for the
	// admin control plane.
	AdminAddress string
	// PasswordFile overrides the credential file path from config.
	PasswordFile string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the broadcast core and the admin plane, then blocks until the
// context is canceled. A missing credential file is fatal: the server
// refuses to start rather than operate with a known or absent password.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-server")

	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	passwordFile := settings.PasswordFile
	if opts.PasswordFile != "" {
		passwordFile = opts.PasswordFile
	}

	// Fail closed: no credential, no server.
	store, err := creds.Load(passwordFile)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	adminAddress := settings.AdminAddress
	if opts.AdminAddress != "" {
		adminAddress = opts.AdminAddress
	}

	var audit *history.Store

	if settings.HistoryFile != "" {
		audit, err = history.Open(settings.HistoryFile)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}

		defer func() {
			_ = audit.Close()
		}()
	}

	core := NewServer(listenAddress, WithWriteTimeout(settings.Timeout))
	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("start broadcast listener on %s: %w", listenAddress, err)
	}

	defer core.Stop()

	admin := NewAdmin(adminAddress, originHost(settings.ServerAddress), store, audit, core)
	if err := admin.Start(ctx); err != nil {
		return fmt.Errorf("start admin listener on %s: %w", adminAddress, err)
	}

	defer admin.Stop()

	logger.InfoKV(ctx, "Alarm server running",
		"listen_address", listenAddress, "admin_address", adminAddress,
		"history_file", settings.HistoryFile)

	<-ctx.Done()
	logger.Info(ctx, "Shutting down alarm server")

	return nil
}

// resolveListenAddress determines the broadcast listen address. If override
// is provided, uses it directly. Otherwise extracts the port from configAddr
// and binds on all interfaces.
func resolveListenAddress(configAddr, override string) (string, error) {
	// Use override address if provided (e.g., ":9999", "0.0.0.0:9999").
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	// Extract port from config address (e.g., "alarms.local:9999" -> ":9999").
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}

// originHost extracts the host part of the configured server address for
// the Server field of built events, falling back to the full address.
func originHost(configAddr string) string {
	host, _, err := net.SplitHostPort(configAddr)
	if err != nil || host == "" {
		return configAddr
	}

	return host
}
