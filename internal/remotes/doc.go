// Package remotes holds the feature modules the fedauth shell mounts next to
// its own routes. A remote never builds its own identity provider: it
// resolves the one the shell shared through a federation.Scope and reads the
// active account from it.
package remotes
