// Package challengeAuth authenticates users without the password ever crossing
// the wire, resolves role and permission grants behind a short-lived cache,
// and schedules follow-up work such as verification email on a Redis job
// queue.
//
// Login is a two-step handshake. [Engine.InitLogin] issues a session id, an
// IV, a random challenge and the account salt. The client derives its password
// hash from the salt, encrypts the challenge with it and submits the
// ciphertext to [Engine.VerifyChallenge], which recomputes it server-side.
// Accounts with TOTP enabled then finish through [Engine.VerifyMFA].
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// challengeAuth is the public surface: [Engine], [Builder], [Config], result
// types and response [Code]s. Redis key layout and record encoding live under
// internal/. The relational credential store is reached only through
// identity.Store.
//
// # What this package must NOT do
//
//   - Reveal through a response shape or code whether an identifier exists.
//   - Log passwords, hashes, challenges, TOTP secrets or verification codes.
//   - Import httpapi or middleware (they import this package).
package challengeAuth
