// Package lmsauth is the session authority of the LMS backend: it admits
// logins under a per-user concurrent-session bound, binds bearer tokens to
// server-side session records, expires idle sessions lazily and revokes
// sessions on logout, admin action, password change, ban and deletion.
//
// Authority methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// lmsauth is the public surface. It exposes [Authority], [Builder], [Config]
// and value types. Flow orchestration and audit dispatch live under
// internal/. Sessions are persisted through a [session.Store]; users are read
// and written through a [UserProvider].
//
// # What this package must NOT do
//
//   - Cache session state in process.
//   - Expose token material beyond what Login returns.
//   - Import any sub-package that re-imports lmsauth.
package lmsauth
