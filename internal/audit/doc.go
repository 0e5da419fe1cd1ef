// Package audit relays security events (logins, MFA changes, grant changes)
// from the engine to a caller-supplied sink without blocking the request.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON lines, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: one record: type, identity, identifier, client IP, outcome.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. The engine decides which events
// to emit; this package must not import it.
package audit
