// Package history persists an audit log of broadcasts and security events
// (authentication failures, password changes) in a local SQLite database.
// The server appends to it; the passwd tool reads it back for operators.
package history
