// Package creds manages the single administrative credential: a salted
// SHA-256 hash persisted as "salt:hash". Loading fails closed when the file
// is missing, verification is constant-time, and replacement is atomic.
package creds
