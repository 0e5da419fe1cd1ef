// Package otel exposes engine event counts and audit drops as OpenTelemetry
// observable counters.
//
// [NewExporter] registers one Int64ObservableCounter named
// challengeauth.events with an "event" attribute, plus
// challengeauth.audit.dropped. A single callback reads the source on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
