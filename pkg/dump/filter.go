package dump

// LoadFilter restricts which crates a load keeps. Rows linked to crates the
// filter rejects are dropped without counting as skipped.
type LoadFilter struct {
	names map[string]struct{}
	all   bool
}

// All keeps every crate.
func All() LoadFilter { return LoadFilter{all: true} }

// Select keeps only the named crates.
func Select(names ...string) LoadFilter {
	f := LoadFilter{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		f.names[n] = struct{}{}
	}
	return f
}

// Single keeps one crate.
func Single(name string) LoadFilter { return Select(name) }

// Matches reports whether the crate name passes the filter. The zero LoadFilter
// matches everything.
func (f LoadFilter) Matches(name string) bool {
	if f.all || f.names == nil {
		return true
	}
	_, ok := f.names[name]
	return ok
}

// selective reports whether the filter can reject any crate.
func (f LoadFilter) selective() bool { return !f.all && f.names != nil }
