// Package updater distributes and applies releases of the alarm broadcast
// binaries. A release directory with a YAML manifest of SHA-512 checksums is
// served over HTTP; the apply side compares versions and checksums per host
// role, downloads what differs and swaps the binaries in place.
package updater
