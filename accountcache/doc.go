// Package accountcache persists signed-in accounts and their access tokens so
// that several processes sharing one client registration also share one
// sign-in.
//
// # Binary encoding
//
// Records are stored in Redis in a compact versioned binary format. Version 1
// predates refresh tokens; version 2 is current. Decoding accepts both, and
// the Store rewrites v1 records in the current format on read.
//
// # What this package must NOT do
//
//   - Import fedAuth or any provider package.
//   - Decide which account is authoritative; it only remembers the pointer it
//     was given.
package accountcache
