// Package testorch implements the test orchestrator (spec.md 4.6): selecting
// which tests to run, driving the expect-test auto-update loop, and
// reconciling snapshot tests.
package testorch

import (
	"sort"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Filter selects which tests a `moon test` invocation runs: by package name
// (repeatable `-p`), file name within a package (`-f`), and a zero-based
// index within that file (`-i`), per spec.md 4.6, "Filtering".
type Filter struct {
	Packages []string
	File     string
	Index    int // -1 means "every index in the file"
}

// HasIndex reports whether the filter names a specific test index.
func (f Filter) HasIndex() bool { return f.Index >= 0 }

// MatchesPackage reports whether pkgFQN passes the package filter (an empty
// Packages list matches every package).
func (f Filter) MatchesPackage(pkgFQN string) bool {
	if len(f.Packages) == 0 {
		return true
	}
	for _, p := range f.Packages {
		if p == pkgFQN {
			return true
		}
	}
	return false
}

// MatchesFile reports whether file passes the file filter (an empty File
// matches every file in the package).
func (f Filter) MatchesFile(file string) bool {
	return f.File == "" || f.File == file
}

// MatchesIndex reports whether idx passes the index filter.
func (f Filter) MatchesIndex(idx int) bool {
	return !f.HasIndex() || f.Index == idx
}

// Matches reports whether a single (package, file, index) triple is selected
// to run.
func (f Filter) Matches(pkgFQN, file string, idx int) bool {
	return f.MatchesPackage(pkgFQN) && f.MatchesFile(file) && f.MatchesIndex(idx)
}

// SuggestPackages returns the package names in knownPackages within
// maxDistance edits of needle, closest first, for an error message along
// the lines of "no such package X, did you mean Y?"
func SuggestPackages(needle string, knownPackages []string, maxDistance int) []string {
	return suggest(needle, knownPackages, maxDistance)
}

func suggest(needle string, haystack []string, maxDistance int) []string {
	r := []rune(needle)
	type candidate struct {
		s    string
		dist int
	}
	var options []candidate
	for _, straw := range haystack {
		dist := levenshtein.DistanceForStrings(r, []rune(straw), levenshtein.DefaultOptions)
		if len(straw) > 0 && dist <= maxDistance {
			options = append(options, candidate{straw, dist})
		}
	}
	sort.Slice(options, func(i, j int) bool { return options[i].dist < options[j].dist })
	result := make([]string, len(options))
	for i, o := range options {
		result[i] = o.s
	}
	return result
}
