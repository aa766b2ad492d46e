// Package middleware adapts the session authority to net/http.
//
// # Gates
//
//   - [Authenticate]: bearer token required, 401 otherwise.
//   - [Optional]: identity attached when present, never rejects.
//   - [RequireRoles]: 403 unless the identity's role is allowed.
//   - [RequireOwnerOrAdmin]: 403 unless the caller owns the resource or is an admin.
//   - [ClientMeta]: records client IP and User-Agent for login and audit.
//
// Error bodies are {"success": false, "message": "..."}.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Access the session store.
package middleware
