package dump

import (
	"github.com/hashicorp/go-version"
)

// Latest returns the version rendered when none is requested, or nil when
// every version is yanked or the crate has none.
func (p *Package) Latest() *Version {
	var (
		best       *Version
		bestSemver *version.Version
	)
	for _, v := range p.Versions {
		if v.Yanked {
			continue
		}
		sv, err := version.NewSemver(v.Num)
		if err != nil {
			sv = nil
		}
		if best == nil || newer(v, sv, best, bestSemver) {
			best, bestSemver = v, sv
		}
	}
	return best
}

// newer reports whether candidate a outranks the current best b.
// Parsed semvers outrank unparsed ones.
func newer(a *Version, as *version.Version, b *Version, bs *version.Version) bool {
	switch {
	case as != nil && bs == nil:
		return true
	case as == nil && bs != nil:
		return false
	case as != nil && bs != nil:
		if c := as.Compare(bs); c != 0 {
			return c > 0
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Num > b.Num
}
