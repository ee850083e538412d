// Package server implements the alarm broadcast network core: the session
// registry, per-session heartbeating, the fan-out dispatcher, the connection
// acceptor and the authenticated admin control plane.
//
// Clients connect and simply receive; delivery is at-least-once with silent
// drops to a dead client tolerated until the next heartbeat evicts it.
package server
