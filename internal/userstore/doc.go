// Package userstore reads and updates LMS accounts in PostgreSQL on behalf of
// the session authority.
package userstore
