// Package rate counts failed attempts in Redis: logins per identifier and
// IP ([Limiter]) and one-time code guesses per subject ([Attempts]).
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on first hit. Key prefixes:
//   - al   failed logins per identifier
//   - ali  failed logins per client IP
//   - aevf wrong email verification codes per address
//   - amf  wrong TOTP codes per identity
//
// # What this package must NOT do
//
//   - Decide response codes (the engine maps ErrRateLimited).
//   - Be imported outside the challengeAuth module.
package rate
