// Package client implements the workstation side of the broadcast network:
// a session manager that keeps a durable connection to the server,
// auto-reconnects on failure, decodes incoming events and dispatches them
// to a consumer.
package client
