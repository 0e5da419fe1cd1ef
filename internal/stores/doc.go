// Package stores provides Redis-backed, short-lived record stores for the
// login handshake: login sessions, MFA login challenges, MFA enrollment
// secrets, slotted email verification codes and the effective-permission
// cache.
//
// # Design
//
// Records are versioned and binary-encoded (the permission cache uses JSON)
// and always written with a TTL. Single-use records (login sessions, MFA
// challenges) are consumed with GETDEL so that two concurrent submissions of
// the same key cannot both observe it. Verification-code slots are claimed by
// a Lua script and consumed by DEL whose result decides the winner.
//
// # What this package must NOT do
//
//   - Import challengeAuth or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
