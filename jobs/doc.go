// Package jobs is a delayed job queue on Redis sorted sets with an explicit
// claim step, and the polling processor that drains it.
//
// # Layout
//
// Job bodies live in a hash keyed by job id. Three sorted sets hold ids:
// pending (score = due time), in-flight (score = lease deadline) and dead
// (score = time of dead-lettering). All scores are epoch milliseconds.
//
// # Delivery
//
// Claim atomically moves due ids from pending to in-flight and, in the same
// script, returns expired in-flight leases to pending. Ack and Remove delete
// by identifier. Delivery is at-least-once: handlers must be idempotent.
//
// At most one Processor per deployment claims work at a time; the others keep
// polling the leader lease and stay idle until it frees up.
package jobs
