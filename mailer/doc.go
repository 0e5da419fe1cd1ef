// Package mailer sends outbound email for challengeAuth.
//
// The engine only depends on the Mailer interface. SMTP delivers through a
// plain SMTP relay; Log writes messages to a zap logger instead of sending
// them, for local runs and tests.
package mailer
