// Package prometheus exposes fedAuth facade metrics through a
// client_golang Collector.
//
// Counter names are prefixed fedauth_ and suffixed _total; the one histogram
// is fedauth_token_latency_seconds. The fedauth_session_* gauges are read
// from the live session on every scrape.
//
// # What this package must NOT do
//
//   - Register metrics in the default registry (Handler uses its own).
//   - Mutate facade state.
package prometheus
