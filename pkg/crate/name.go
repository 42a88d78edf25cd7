// Package crate parses and validates the user-supplied identity of a crate:
// its name, an optional version selector, and the "<name>.png" file form used
// by the HTTP route and bulk output names.
package crate

import (
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/matzehuels/ogloc/pkg/errors"
)

// MaxNameLen is the longest crate name crates.io accepts.
const MaxNameLen = 64

// pngSuffix is appended to crate names to form image file names.
const pngSuffix = ".png"

// ValidateName checks a crate name against the crates.io naming rules:
// non-empty, at most 64 ASCII characters, alphanumerics plus '-' and '_'.
func ValidateName(name string) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidPackage, "crate names cannot be empty")
	}
	if len(name) > MaxNameLen {
		return errors.New(errors.ErrCodeInvalidPackage, "crate names can not be longer than %d characters", MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 0x80 {
			return errors.New(errors.ErrCodeInvalidPackage, "crate names must be ASCII")
		}
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return errors.New(errors.ErrCodeInvalidPackage, "crate names must use only alphanumeric characters or `-` or `_`")
		}
	}
	return nil
}

func isNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// ParseFileName accepts either "<name>" or "<name>.png" and returns the
// validated crate name.
func ParseFileName(s string) (string, error) {
	name := strings.TrimSuffix(s, pngSuffix)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// FileName returns the image file name for a crate.
func FileName(name string) string {
	return name + pngSuffix
}

// Selector picks which version of a crate to render. The zero value selects
// the latest renderable version.
type Selector struct {
	Version string
}

// Latest selects the latest renderable version.
var Latest = Selector{}

// Exact selects one published version.
func Exact(v string) Selector {
	return Selector{Version: v}
}

// IsLatest reports whether no explicit version was requested.
func (s Selector) IsLatest() bool { return s.Version == "" }

// String returns the version or "latest".
func (s Selector) String() string {
	if s.IsLatest() {
		return "latest"
	}
	return s.Version
}

// ParseSelector validates a user-supplied version. Empty and "latest" select
// the latest version; anything else must be a semantic version.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "latest" {
		return Latest, nil
	}
	s = strings.TrimSuffix(s, pngSuffix)
	if _, err := version.NewSemver(s); err != nil {
		return Selector{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "not a valid semver version: %q", s)
	}
	return Exact(s), nil
}
