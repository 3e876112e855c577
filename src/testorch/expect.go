package testorch

import (
	"fmt"
	"sort"
	"strings"
)

// SourceLoc is a byte-offset span within one source file, the unit the
// expect-test patcher rewrites (spec.md 4.6, "Expect-test auto-update
// loop").
type SourceLoc struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ExpectFailure is one EXPECT_FAILED JSON outcome's payload. Loc is the
// call site's own span (e.g. the full extent of `inspect(1+2)`) and is
// always present. ArgsLoc[0] is the actual value argument's span and is
// always present; ArgsLoc[1] is the existing content= literal's span, present
// only when the call already supplies one. ArgsLoc[2]/[3] are unused by the
// patcher.
type ExpectFailure struct {
	Loc     *SourceLoc    `json:"loc"`
	ArgsLoc [4]*SourceLoc `json:"args_loc"`
	Expect  string        `json:"expect"`
	Actual  string        `json:"actual"`
}

// PatchKind classifies how a missing-or-stale expect literal must be
// rewritten, determined from the call-site shape (spec.md 4.6, step 4).
type PatchKind int

const (
	// PatchTrivial: a content= literal already exists; replace its span.
	PatchTrivial PatchKind = iota
	// PatchPipe: the actual value's own location precedes the call's span
	// (method/pipe style, e.g. `1 + 2 |> inspect()`); insert content=
	// immediately before the closing paren.
	PatchPipe
	// PatchCall: a plain function-call shape, e.g. `inspect(1+2)`; insert
	// `, content="…"` as an additional trailing argument before the closing
	// paren.
	PatchCall
)

// Kind determines which patch shape applies to this failure: Trivial when an
// expect literal already exists to replace (ArgsLoc[1] present), otherwise
// Pipe or Call depending on whether the actual value's location textually
// precedes the call's own location.
func (f ExpectFailure) Kind() PatchKind {
	if f.ArgsLoc[1] != nil {
		return PatchTrivial
	}
	if f.ArgsLoc[0] != nil && f.ArgsLoc[0].ahead(f.Loc) {
		return PatchPipe
	}
	return PatchCall
}

// ahead reports whether l starts strictly before other (used to tell a
// piped-in actual value, which precedes the call it feeds, from a plain
// argument, which sits inside the call's own span).
func (l *SourceLoc) ahead(other *SourceLoc) bool {
	return l.Start < other.Start
}

// patch is one resolved file edit: replace the byte range [Start,End) in
// Path with Text.
type patch struct {
	Path  string
	Start int
	End   int
	Text  string
}

// RenderLiteral renders value as a MoonBit string literal suitable for a
// content= argument: a double-quoted single-line form with standard
// escaping when value has no newline or quote, otherwise a `#|`-prefixed
// multiline literal indented two spaces past indent (spec.md 4.6, step 5).
func RenderLiteral(value string, indent int) string {
	if !strings.ContainsAny(value, "\n\"") {
		return quoteLine(value)
	}
	pad := strings.Repeat(" ", indent+2)
	lines := strings.Split(value, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pad)
		b.WriteString("#|")
		b.WriteString(line)
	}
	return b.String()
}

func quoteLine(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// BuildPatch turns one failure into a concrete file edit, given the
// indentation column of its call site (used only for multiline literals).
// Pipe and Call both insert just before Loc's closing paren, one byte before
// Loc.End; Trivial instead replaces the existing content= literal's own span.
func (f ExpectFailure) BuildPatch(indent int) patch {
	literal := RenderLiteral(f.Actual, indent)
	switch f.Kind() {
	case PatchTrivial:
		lit := f.ArgsLoc[1]
		return patch{Path: lit.Path, Start: lit.Start, End: lit.End, Text: literal}
	case PatchPipe:
		at := f.Loc.End - 1
		return patch{Path: f.Loc.Path, Start: at, End: at, Text: "content=" + literal}
	default: // PatchCall
		at := f.Loc.End - 1
		return patch{Path: f.Loc.Path, Start: at, End: at, Text: ", content=" + literal}
	}
}

// GroupAndSortByFile groups failures by source file and sorts each group's
// patches by ascending source position, so patches within one file can be
// applied in a single left-to-right pass without earlier edits shifting
// later offsets out from under each other (spec.md 4.6, step 3).
func GroupAndSortByFile(failures []ExpectFailure, indentOf func(ExpectFailure) int) map[string][]patch {
	byFile := map[string][]patch{}
	for _, f := range failures {
		p := f.BuildPatch(indentOf(f))
		byFile[p.Path] = append(byFile[p.Path], p)
	}
	for _, patches := range byFile {
		sort.Slice(patches, func(i, j int) bool { return patches[i].Start < patches[j].Start })
	}
	return byFile
}

// ApplyPatches rewrites content by applying patches (already sorted
// ascending by Start, and guaranteed non-overlapping since each addresses a
// distinct call site) in a single left-to-right pass, returning the new file
// text.
func ApplyPatches(content string, patches []patch) (string, error) {
	var b strings.Builder
	cursor := 0
	for _, p := range patches {
		if p.Start < cursor || p.Start > len(content) || p.End > len(content) || p.End < p.Start {
			return "", fmt.Errorf("patch at byte %d is out of range or overlaps a previous patch", p.Start)
		}
		b.WriteString(content[cursor:p.Start])
		b.WriteString(p.Text)
		cursor = p.End
	}
	b.WriteString(content[cursor:])
	return b.String(), nil
}
