// Package otel publishes fedAuth facade metrics through OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter per facade counter and
// an Int64ObservableGauge per latency bucket, plus Float64ObservableGauges for
// the latency sum and the fedauth_session_* values. One callback reads
// [fedAuth.Facade.MetricsSnapshot] and [fedAuth.Facade.Session] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider (callers supply the Meter).
//   - Mutate facade state.
package otel
