package dump

import (
	"fmt"
	"time"
)

// OwnerKind distinguishes user owners from team owners. The numeric values
// match the owner_kind column of crate_owners.csv.
type OwnerKind int

const (
	OwnerUser OwnerKind = 0
	OwnerTeam OwnerKind = 1
)

// String returns "user" or "team".
func (k OwnerKind) String() string {
	if k == OwnerTeam {
		return "team"
	}
	return "user"
}

// OwnerID identifies an owner. User and team ids live in separate tables and
// may collide, so the kind is part of the identity.
type OwnerID struct {
	Kind OwnerKind
	Num  int64
}

func (id OwnerID) String() string {
	return fmt.Sprintf("%s:%d", id.Kind, id.Num)
}

// Owner is a user or team that owns one or more crates. Owners are shared by
// pointer between every package they own.
type Owner struct {
	ID     OwnerID
	Login  string
	Name   string // Display name; may be empty
	Avatar string // Avatar URL; may be empty
}

// Kind returns the owner kind.
func (o *Owner) Kind() OwnerKind { return o.ID.Kind }

// DisplayName returns the name if set and the login otherwise.
func (o *Owner) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Login
}

// Version is one published release of a crate.
type Version struct {
	Package   string // Owning crate name (back-reference)
	Num       string // Version string as published, e.g. "1.0.193"
	CreatedAt time.Time
	Downloads int64
	Yanked    bool
	License   string

	id int64
}

// Package is a crate with its versions and owners.
type Package struct {
	Name        string
	Description string
	Downloads   int64      // Aggregate downloads across versions
	Versions    []*Version // Ordered by publish time, oldest first
	Owners      []*Owner   // Unique by ID, in link order

	// DefaultVersion is the crates.io default version when the dump carries
	// default_versions.csv. Informational only; see Latest.
	DefaultVersion string

	id int64
}

// Version returns the version with the exact number, or nil.
func (p *Package) Version(num string) *Version {
	for _, v := range p.Versions {
		if v.Num == num {
			return v
		}
	}
	return nil
}

// Stats summarises a load.
type Stats struct {
	Sections map[string]SectionStats
	Packages int
	Versions int
	Owners   int
	Duration time.Duration
}

// SectionStats counts rows read and skipped for one CSV section.
type SectionStats struct {
	Rows    int
	Skipped int
}

// Skipped returns the total number of skipped rows across sections.
func (s Stats) Skipped() int {
	n := 0
	for _, sec := range s.Sections {
		n += sec.Skipped
	}
	return n
}
