// Package session is the ledger of login sessions and the single source of
// truth for whether a session is currently valid.
//
// # Implementations
//
// [PostgresStore] is the durable store. [RedisStore] keeps the same contract
// in Redis for deployments that already run it; revoked records are retained
// for a configurable period as an audit trail.
//
// # Architecture boundaries
//
// The store is a dumb ledger. It does NOT apply idle timeouts on reads, decide
// admission, or interpret bearer tokens; those decisions belong to the
// authority in the root package.
//
// # What this package must NOT do
//
//   - Import lmsauth, jwt, or middleware (no upward imports).
//   - Hard-delete session rows during normal operation.
//   - Move LastActivity backward.
package session
