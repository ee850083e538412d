// Package config defines connection settings used by the alarm binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the broadcast listener address, the admin control
// plane address and the paths of the credential and history files.
package config
