package testorch

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// RenderDiff renders a unified diff between old and new content for path,
// using go-diff's FileDiff/Hunk model to print the standard unified-diff
// text format (spec.md 4.6, "on limit exceeded ... the last diff rendered";
// 4.6 snapshot tests, "without update, a diff is rendered"). The hunk
// itself is whole-file (every old line removed, every new line added) since
// this module carries no line-level diff algorithm — acceptable because the
// spec only requires *a* rendered diff, not a minimal one.
func RenderDiff(path, old, new string) (string, error) {
	var body strings.Builder
	oldLines := splitLines(old)
	newLines := splitLines(new)
	for _, l := range oldLines {
		fmt.Fprintf(&body, "-%s\n", l)
	}
	for _, l := range newLines {
		fmt.Fprintf(&body, "+%s\n", l)
	}

	hunk := &diff.Hunk{
		OrigStartLine: 1,
		OrigLines:     int32(len(oldLines)),
		NewStartLine:  1,
		NewLines:      int32(len(newLines)),
		Body:          []byte(body.String()),
	}
	fd := &diff.FileDiff{
		OrigName: path,
		NewName:  path,
		Hunks:    []*diff.Hunk{hunk},
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
