// Package federation shares singletons between independently built parts of
// one process.
//
// A host creates a [Scope] and provides instances under well-known names; a
// remote resolves them with a version [Requirement] instead of constructing
// its own. Resolution checks the provided version against a semver
// constraint. A mismatch is fatal only when the requirement is strict;
// otherwise it is logged and the shared instance is used anyway, so every
// consumer keeps seeing the same identity provider.
package federation
