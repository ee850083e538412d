package sender

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
	"github.com/oshokin/alarm-broadcast/internal/protocol"
)

// Options carries the operator's input for one admin-plane call.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// AdminAddress overrides the admin plane address from config.
	AdminAddress string

	// Admin is the operator identity stamped on broadcasts.
	Admin string
	// Password is the admin credential.
	Password string

	// Preset selects a predefined alarm class. Mutually exclusive with the
	// custom fields below.
	Preset string
	// Message is the alarm body text.
	Message string
	// Color is the accent color for custom alarms.
	Color string
	// Icon is the title glyph for custom alarms.
	Icon string
	// Name is the display title for custom alarms.
	Name string
	// BackgroundImagePath points at an optional local image shipped with
	// the alarm.
	BackgroundImagePath string

	// NewPassword is the replacement credential for the rotate operation.
	NewPassword string
}

// ErrRejected indicates the server refused the operation.
var ErrRejected = errors.New("server rejected the operation")

// RunSend triggers one alarm broadcast and reports the fan-out result.
func RunSend(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-sender")

	request := &protocol.Request{
		Admin:    opts.Admin,
		Password: opts.Password,
		Preset:   opts.Preset,
		Message:  opts.Message,
		Color:    opts.Color,
		Icon:     opts.Icon,
		Name:     opts.Name,
	}

	if opts.BackgroundImagePath != "" {
		image, err := os.ReadFile(opts.BackgroundImagePath)
		if err != nil {
			return fmt.Errorf("read background image: %w", err)
		}

		request.BackgroundImage = base64.StdEncoding.EncodeToString(image)
	}

	response, err := withClient(ctx, opts, func(client *Client) (*protocol.Response, error) {
		return client.Broadcast(request)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Alarm sent to %d client(s)", response.Sent)

	if response.Failed > 0 {
		fmt.Fprintf(out, ", %d dead session(s) evicted", response.Failed)
	}

	fmt.Fprintln(out)

	if response.Sent == 0 {
		logger.Warn(ctx, "No clients received the alarm")
	}

	return nil
}

// RunStatus prints the connected client roster.
func RunStatus(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-sender")

	response, err := withClient(ctx, opts, func(client *Client) (*protocol.Response, error) {
		return client.Status(opts.Password)
	})
	if err != nil {
		return err
	}

	if len(response.Clients) == 0 {
		fmt.Fprintln(out, "No clients connected")

		return nil
	}

	fmt.Fprintf(out, "%d client(s) connected:\n", len(response.Clients))

	for _, client := range response.Clients {
		fmt.Fprintf(out, "  #%d  %s  last heartbeat %s\n",
			client.ID, client.Address, client.LastHeartbeat)
	}

	return nil
}

// RunChangePassword rotates the admin credential on the server.
func RunChangePassword(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-sender")

	_, err := withClient(ctx, opts, func(client *Client) (*protocol.Response, error) {
		return client.ChangePassword(opts.Admin, opts.Password, opts.NewPassword)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Password changed")

	return nil
}

// RunPresets lists the predefined alarm classes. Purely local, no server
// connection involved.
func RunPresets(out io.Writer) error {
	for _, preset := range alarm.Presets() {
		fmt.Fprintf(out, "%-20s %s %s (%s)\n", preset.Kind, preset.Icon, preset.Name, preset.Color)
	}

	return nil
}

// withClient resolves the admin address, performs one call and maps a
// server-side rejection to an error the CLI can surface.
func withClient(
	ctx context.Context,
	opts *Options,
	call func(*Client) (*protocol.Response, error),
) (*protocol.Response, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	address := settings.AdminAddress
	if opts.AdminAddress != "" {
		address = opts.AdminAddress
	}

	client, err := Dial(ctx, address, settings.Timeout)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = client.Close()
	}()

	response, err := call(client)
	if err != nil {
		return nil, err
	}

	if !response.OK {
		return nil, fmt.Errorf("%w: %s", ErrRejected, response.Error)
	}

	return response, nil
}
