// Package descriptor holds the immutable target, module and external records
// that a build is planned from.
//
// Records are validated at construction and never mutated afterwards. A Store
// indexes them by name; modules and externals share one namespace because
// either can satisfy a dependency, while targets have their own.
package descriptor

import (
	"slices"
	"sync"
)

// Store is the in-memory descriptor index populated by a loader.
type Store struct {
	mu        sync.RWMutex
	targets   map[string]*Target
	modules   map[string]*Module
	externals map[string]*External
	order     []string
}

// NewStore creates an empty descriptor store.
func NewStore() *Store {
	return &Store{
		targets:   make(map[string]*Target),
		modules:   make(map[string]*Module),
		externals: make(map[string]*External),
	}
}

// AddTarget registers a target descriptor.
func (s *Store) AddTarget(t *Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[t.Name()]; exists {
		return &DuplicateNameError{Kind: "target", Name: t.Name()}
	}
	s.targets[t.Name()] = t
	s.order = append(s.order, t.Name())
	return nil
}

// AddModule registers a module descriptor.
func (s *Store) AddModule(m *Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkModuleNameLocked(m.Name()); err != nil {
		return err
	}
	s.modules[m.Name()] = m
	return nil
}

// AddExternal registers a pre-resolved external module.
func (s *Store) AddExternal(e *External) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkModuleNameLocked(e.Name()); err != nil {
		return err
	}
	s.externals[e.Name()] = e
	return nil
}

// EnsureExternal registers an external module unless a module or external of
// that name already exists. It reports whether a record was added.
func (s *Store) EnsureExternal(name, artifact string) (bool, error) {
	e, err := NewExternal(name, artifact)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkModuleNameLocked(e.Name()) != nil {
		return false, nil
	}
	s.externals[e.Name()] = e
	return true, nil
}

func (s *Store) checkModuleNameLocked(name string) error {
	if _, exists := s.modules[name]; exists {
		return &DuplicateNameError{Kind: "module", Name: name}
	}
	if _, exists := s.externals[name]; exists {
		return &DuplicateNameError{Kind: "module", Name: name}
	}
	return nil
}

// Target looks up a target by name.
func (s *Store) Target(name string) (*Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[name]
	return t, ok
}

// Module looks up a module by name.
func (s *Store) Module(name string) (*Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[name]
	return m, ok
}

// External looks up an external module by name.
func (s *Store) External(name string) (*External, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.externals[name]
	return e, ok
}

// TargetNames returns target names in registration order.
func (s *Store) TargetNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Counts returns the number of targets, modules and externals.
func (s *Store) Counts() (targets, modules, externals int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets), len(s.modules), len(s.externals)
}
