// Package security summarizes the security posture of an engine
// configuration: token lifetimes, key derivation cost, MFA and throttle
// settings. The engine builds the input; this package only derives flags
// from it.
package security
