package core

import (
	"fmt"
	"strings"

	coreossemver "github.com/coreos/go-semver/semver"
	"github.com/Masterminds/semver/v3"
)

// MoonVersion is the current version of the moon build tool itself.
var MoonVersion = *coreossemver.New("0.1.0")

// A Version is an exact, resolved module version (no range).
// It wraps coreos/go-semver since manifest-declared versions must parse
// strictly (no "v" prefix coercion, no partial versions).
type Version struct {
	coreossemver.Version
}

// ParseVersion parses an exact version string from a manifest.
func ParseVersion(s string) (Version, error) {
	v, err := coreossemver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Version{Version: *v}, nil
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return v.Version.String()
}

// A Constraint is a version requirement as written in a manifest's deps map.
// Only caret ranges are accepted (spec.md 4.1): any other operator is a fatal
// resolution error.
type Constraint struct {
	raw        string
	constraint *semver.Constraints
	// floor is the version named in the caret requirement; MVS selects the
	// maximum floor across all requirers in a compatibility set.
	floor *semver.Version
}

// ParseConstraint parses a dependency requirement's version-range string.
// Only a leading "^" (caret) is accepted; anything else is rejected outright,
// including bare versions, "~", ">=", "*" etc, per spec.md 4.1.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "^") {
		return Constraint{}, fmt.Errorf("unsupported version operator in requirement %q: only caret ranges (^x.y.z) are accepted", s)
	}
	floor, err := semver.NewVersion(strings.TrimPrefix(s, "^"))
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid version in requirement %q: %w", s, err)
	}
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid caret requirement %q: %w", s, err)
	}
	return Constraint{raw: s, constraint: c, floor: floor}, nil
}

// Floor returns the minimum version that would satisfy this requirement on its own.
func (c Constraint) Floor() *semver.Version { return c.floor }

// CompatibilityKey groups requirements that may be resolved to a single copy
// of a module. Caret ranges are only compatible across the same major
// version (or, for 0.x, the same major.minor - see semver caret semantics).
func (c Constraint) CompatibilityKey() string {
	if c.floor.Major() > 0 {
		return fmt.Sprintf("%d", c.floor.Major())
	}
	return fmt.Sprintf("0.%d", c.floor.Minor())
}

// Satisfies reports whether v satisfies this constraint.
func (c Constraint) Satisfies(v *semver.Version) bool {
	return c.constraint.Check(v)
}

func (c Constraint) String() string { return c.raw }
