// Package broadcast fans values out to many subscribers without letting a slow
// subscriber block the publisher.
//
// A [Hub] created with replay enabled behaves like a behaviour subject: each new
// subscriber first receives the most recent value. Identity providers use a
// replaying hub for interaction status and a plain hub for events.
//
// # What this package must NOT do
//
//   - Import fedAuth or any provider package.
//   - Interpret the values it carries.
package broadcast
