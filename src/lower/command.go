package lower

import (
	"strings"

	"github.com/alessio/shellescape"
	"github.com/google/shlex"
)

// Command is one build plan node lowered to something the execution engine
// can run directly: an argv, the files it reads, and the files it is
// expected to produce (spec.md 4.4, "Each abstract node is translated
// into...").
type Command struct {
	Argv    []string
	Inputs  []string
	Outputs []string
	// Dir is the working directory the command should run from, empty for
	// the invocation root.
	Dir string
}

// String renders a shell-safe one-line preview of the command, used by
// `--dry-run`/`--trace` (spec.md 6).
func (c Command) String() string {
	parts := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		parts[i] = shellescape.Quote(a)
	}
	return strings.Join(parts, " ")
}

// splitFlags parses a manifest-supplied flag string (compile_flags,
// link_flags, cflags, ar-flags, link-flags) the same way a shell would,
// so quoted arguments containing spaces survive (spec.md 3, "Package
// manifest").
func splitFlags(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return shlex.Split(s)
}
