// Package passwd implements local maintenance of the admin credential file:
// first-time provisioning, offline reset, format checks and a view over the
// recorded security events. It operates on files directly and never talks
// to a running server.
package passwd
