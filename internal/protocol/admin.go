// Package protocol defines the shared message types and line codec used by
// the admin control plane, exchanged between the server and the operator
// tools. One JSON object per line; the broadcast plane has its own wire
// format and does not use this package.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Admin-plane operations.
const (
	// OpBroadcast triggers a fan-out of one alarm event to every session.
	OpBroadcast = "broadcast"
	// OpStatus returns the current client roster.
	OpStatus = "status"
	// OpChangePassword replaces the admin credential.
	OpChangePassword = "change_password"
)

// Request is the envelope for one admin control-plane call.
type Request struct {
	// Op selects the operation.
	Op string `json:"op"`
	// Admin is the operator identity recorded on broadcasts.
	Admin string `json:"admin,omitempty"`
	// Password is the admin credential candidate.
	Password string `json:"password,omitempty"`

	// Preset selects a predefined alarm class for OpBroadcast.
	// When set, Name/Icon/Color below are ignored.
	Preset string `json:"preset,omitempty"`
	// Message is the alarm body text for OpBroadcast.
	Message string `json:"message,omitempty"`
	// Color is the accent color for custom alarms.
	Color string `json:"color,omitempty"`
	// Icon is the title glyph for custom alarms.
	Icon string `json:"icon,omitempty"`
	// Name is the display title for custom alarms.
	Name string `json:"name,omitempty"`
	// BackgroundImage is an optional base64 image payload.
	BackgroundImage string `json:"background_image,omitempty"`

	// NewPassword is the replacement credential for OpChangePassword.
	NewPassword string `json:"new_password,omitempty"`
}

// ClientInfo describes one connected session in a status response.
// The address is advisory, for display and logging only.
type ClientInfo struct {
	ID            uint64 `json:"id"`
	Address       string `json:"address"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// Response is the reply to one admin control-plane call.
type Response struct {
	// OK reports whether the operation was accepted.
	OK bool `json:"ok"`
	// Error carries the failure reason when OK is false.
	Error string `json:"error,omitempty"`
	// Sent is the number of sessions that received the broadcast.
	Sent int `json:"sent"`
	// Failed is the number of sessions evicted during the broadcast.
	Failed int `json:"failed"`
	// Clients is the roster returned by OpStatus.
	Clients []ClientInfo `json:"clients,omitempty"`
}

// WriteMessage encodes v as a single JSON line.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// ReadMessage decodes one JSON line into v.
func ReadMessage(r *bufio.Reader, v any) error {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return err //nolint:wrapcheck // Raw I/O errors are the caller's signal.
	}

	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	return nil
}
