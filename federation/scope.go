package federation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrNotShared is returned when nothing was provided under a name.
	ErrNotShared = errors.New("federation: no shared instance")
	// ErrAlreadyShared is returned when a name is provided twice.
	ErrAlreadyShared = errors.New("federation: instance already shared")
	// ErrVersionMismatch is returned by strict resolutions whose constraint
	// the shared version does not satisfy.
	ErrVersionMismatch = errors.New("federation: version mismatch")
	// ErrTypeMismatch is returned when the shared instance has another type.
	ErrTypeMismatch = errors.New("federation: type mismatch")
	// ErrInvalidVersion wraps unparsable versions and constraints.
	ErrInvalidVersion = errors.New("federation: invalid version")
)

// Requirement describes what a consumer accepts.
type Requirement struct {
	// RequiredVersion is a semver constraint such as "^3.0.0". Empty accepts
	// any version.
	RequiredVersion string
	// StrictVersion turns a constraint mismatch into an error.
	StrictVersion bool
}

type entry struct {
	version  *semver.Version
	instance any
}

// Scope is a registry of shared instances. It is safe for concurrent use.
type Scope struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *slog.Logger
}

// NewScope returns an empty scope. A nil logger uses slog.Default.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{
		entries: make(map[string]entry),
		logger:  logger.With("component", "federation"),
	}
}

// Provide shares instance under name at version.
func (s *Scope) Provide(name, version string, instance any) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidVersion, version, err)
	}
	if instance == nil {
		return fmt.Errorf("federation: nil instance for %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %q at %s", ErrAlreadyShared, name, existing.version)
	}
	s.entries[name] = entry{version: v, instance: instance}
	s.logger.Debug("instance shared", slog.String("name", name), slog.String("version", v.String()))
	return nil
}

// Names lists shared names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Version returns the version name was shared at.
func (s *Scope) Version(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return "", false
	}
	return e.version.String(), true
}

func (s *Scope) lookup(name string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Resolve returns the instance shared under name as a T.
func Resolve[T any](s *Scope, name string, req Requirement) (T, error) {
	var zero T
	e, ok := s.lookup(name)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotShared, name)
	}
	if err := s.checkVersion(name, e.version, req); err != nil {
		return zero, err
	}
	out, ok := e.instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T", ErrTypeMismatch, name, e.instance)
	}
	return out, nil
}

// Share returns the instance shared under name, creating and providing it
// with create when absent. Concurrent callers get the same instance.
func Share[T any](s *Scope, name, version string, req Requirement, create func() (T, error)) (T, error) {
	if inst, err := Resolve[T](s, name, req); err == nil || !errors.Is(err, ErrNotShared) {
		return inst, err
	}

	var zero T
	v, err := semver.NewVersion(version)
	if err != nil {
		return zero, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, version, err)
	}

	s.mu.Lock()
	if _, ok := s.entries[name]; ok {
		s.mu.Unlock()
		return Resolve[T](s, name, req)
	}
	inst, err := create()
	if err != nil {
		s.mu.Unlock()
		return zero, err
	}
	s.entries[name] = entry{version: v, instance: inst}
	s.mu.Unlock()

	if err := s.checkVersion(name, v, req); err != nil {
		return zero, err
	}
	return inst, nil
}

func (s *Scope) checkVersion(name string, have *semver.Version, req Requirement) error {
	if req.RequiredVersion == "" {
		return nil
	}
	c, err := semver.NewConstraint(req.RequiredVersion)
	if err != nil {
		return fmt.Errorf("%w: constraint %q: %v", ErrInvalidVersion, req.RequiredVersion, err)
	}
	if c.Check(have) {
		return nil
	}
	if req.StrictVersion {
		return fmt.Errorf("%w: %q is %s, required %s", ErrVersionMismatch, name, have, req.RequiredVersion)
	}
	s.logger.Warn("shared instance version does not satisfy requirement",
		slog.String("name", name),
		slog.String("version", have.String()),
		slog.String("required", req.RequiredVersion),
	)
	return nil
}
