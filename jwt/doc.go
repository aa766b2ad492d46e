// Package jwt issues and verifies the signed bearer tokens that carry a
// session reference. Access and refresh tokens use independent keys and
// lifetimes.
//
// The codec holds no revocation state: a token that verifies here is
// necessary but not sufficient proof of authentication. Callers must resolve
// the embedded session id against the session store on every request.
package jwt
