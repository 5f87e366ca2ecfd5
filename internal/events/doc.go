// Package events implements the engine's security-event recorder: an
// append-only audit stream drained asynchronously into a pluggable sink,
// a Redis-backed window of recent logins per account, and the coarse
// risk classification computed from that window.
package events
