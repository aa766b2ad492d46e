// Package httpapi exposes the session authority over HTTP: login, logout,
// session listing and termination, admin force-logout, password change,
// account status and deletion.
//
// Handlers are thin; every decision is made by the authority and every error
// body comes from middleware.WriteError.
package httpapi
