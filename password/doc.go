// Package password derives the stored password hash from a password and a
// per-identity salt.
//
// # Output format
//
// Both derivations return the raw key as lowercase hex. The encoding carries no
// parameters: the client of the login handshake re-derives the same string
// from the password and the salt it was issued, so parameters are fixed by
// configuration on both sides.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other challengeAuth package.
//   - Log plaintext passwords.
package password
