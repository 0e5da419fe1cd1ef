// Package permission computes an identity's effective permission set and
// evaluates comma-delimited requirements against it.
//
// # Union law
//
// The effective set is the direct grants of the identity united with the
// grants of every role it holds. [Resolve] is pure; caching and invalidation
// belong to the engine.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import challengeAuth.
package permission
