package sender

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/protocol"
)

// Client is one admin control-plane connection. It is not safe for
// concurrent use; the operator tools are strictly sequential.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to the admin plane of a broadcast server. timeout bounds
// the dial and every subsequent call; zero falls back to the default.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial admin plane at %s: %w", address, err)
	}

	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close() //nolint:wrapcheck // Nothing to add to a socket close error.
}

// call performs one request/response exchange under the call timeout.
func (c *Client) call(request *protocol.Request) (*protocol.Response, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set call deadline: %w", err)
	}

	if err := protocol.WriteMessage(c.conn, request); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var response protocol.Response
	if err := protocol.ReadMessage(c.reader, &response); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &response, nil
}

// Broadcast triggers a fan-out of one alarm. The request's Op field is
// set by this method; everything else is the caller's.
func (c *Client) Broadcast(request *protocol.Request) (*protocol.Response, error) {
	request.Op = protocol.OpBroadcast

	return c.call(request)
}

// Status fetches the connected client roster.
func (c *Client) Status(password string) (*protocol.Response, error) {
	return c.call(&protocol.Request{
		Op:       protocol.OpStatus,
		Password: password,
	})
}

// ChangePassword rotates the admin credential.
func (c *Client) ChangePassword(admin, current, next string) (*protocol.Response, error) {
	return c.call(&protocol.Request{
		Op:          protocol.OpChangePassword,
		Admin:       admin,
		Password:    current,
		NewPassword: next,
	})
}
