// Package middleware adapts the engine's bearer-token and grant checks to
// net/http.
//
// # Guards
//
//   - [Guard] authenticates the Authorization bearer token and stores the
//     resolved [challengeAuth.Principal] on the request context.
//   - [RequirePermission] passes when the principal holds any listed
//     permission.
//   - [RequireRole] passes when the principal holds any listed role.
//
// The permission and role guards must run behind [Guard]. Rejections are
// written as {"code","message"} JSON with the status from
// [challengeAuth.CodeFor].
package middleware
