// Package db owns the PostgreSQL connection pool and the embedded schema
// migrations for users and sessions.
package db
