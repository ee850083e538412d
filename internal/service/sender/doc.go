// Package sender implements the operator side of the admin control plane:
// a line-protocol client plus the commands behind the alarm-sender CLI for
// triggering broadcasts, inspecting the roster and rotating the credential.
package sender
