// Package audit buffers security events and delivers them to a sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//   - [Event]: one audit record.
//
// The package does not decide which events exist; the authority does.
package audit
