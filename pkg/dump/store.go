package dump

import (
	"sort"
)

// versionKey indexes versions by crate name and number.
type versionKey struct {
	name string
	num  string
}

// Store is the immutable crate index. The zero value is an empty store.
type Store struct {
	packages map[string]*Package
	versions map[versionKey]*Version
	owners   map[OwnerID]*Owner
	stats    Stats
}

// Package returns the crate with the given case-sensitive name, or nil.
func (s *Store) Package(name string) *Package {
	return s.packages[name]
}

// Version returns the exact (name, num) version, or nil.
func (s *Store) Version(name, num string) *Version {
	return s.versions[versionKey{name, num}]
}

// Owner returns the owner with the given id, or nil.
func (s *Store) Owner(id OwnerID) *Owner {
	return s.owners[id]
}

// Len returns the number of crates in the store.
func (s *Store) Len() int { return len(s.packages) }

// Names returns all crate names in lexical order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.packages))
	for name := range s.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns load statistics.
func (s *Store) Stats() Stats { return s.stats }
