// Package alarm holds the broadcast domain model: the self-describing Event
// wire type, the heartbeat sentinel, the stream frame reader, color helpers
// for derived presentation fields, and the preset alarm catalog.
package alarm
