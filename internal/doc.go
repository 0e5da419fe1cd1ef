// Package internal contains helper utilities that are private to challengeAuth,
// mainly secure random generation for handshake material.
//
// # Sub-packages
//
//   - audit: async relay of security events to a sink
//   - envconfig: process configuration for the server binary
//   - rate: Redis-backed failed-login and wrong-code counters
//   - security: configuration posture report
//   - stores: Redis stores for ephemeral handshake, MFA, verification and cache state
//
// # What this package must NOT do
//
//   - Be imported by any package outside the challengeAuth module.
package internal
