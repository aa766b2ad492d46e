// Package password hashes and verifies account passwords.
//
// Two algorithms are provided. [Bcrypt] reads and writes the "$2b$" hashes
// already stored for existing accounts. [Argon2] writes PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Chain] verifies either format and hashes with the configured primary, so
// [Chain.NeedsRehash] can drive an upgrade on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing only. Password policy (minimum length, reuse) is
// enforced by the authority.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
package password
