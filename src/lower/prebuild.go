package lower

import (
	"path/filepath"
	"strings"

	"github.com/moonbitlang/moon/src/plan"
)

// expandPrebuildCommand substitutes the five tokens spec.md 4.4 defines for
// prebuild script commands, and rewrites a `:embed `-prefixed command into an
// invocation of the system embed subcommand.
func expandPrebuildCommand(node *plan.Node, modRoot string, inputs, outputs []string) string {
	cmd := node.PrebuildCommand
	if rest, ok := strings.CutPrefix(cmd, ":embed "); ok {
		cmd = embedSubcommand() + " " + rest
	}

	pkgRoot := modRoot
	if node.Package != nil {
		pkgRoot = node.Package.Root
	}
	mooncakeBin := filepath.Join(modRoot, ".mooncakes", "__moon_bin__")

	replacer := strings.NewReplacer(
		"$mod_dir", modRoot,
		"$pkg_dir", pkgRoot,
		"$input", strings.Join(inputs, " "),
		"$output", strings.Join(outputs, " "),
		"$mooncake_bin", mooncakeBin,
	)
	return replacer.Replace(cmd)
}

// embedSubcommand names the system subcommand `:embed ` rewrites to
// (spec.md 4.4, "A command prefixed by `:embed ` is rewritten to invoke the
// system's embed subcommand").
func embedSubcommand() string {
	return "moon tool embed"
}

// lowerPrebuild implements the RunPrebuild node kind: spawn the package's
// configured prebuild command with its five substitution tokens expanded.
func lowerPrebuild(node *plan.Node, modRoot string) (Command, error) {
	pkgRoot := node.Package.Root
	var inputs, outputs []string
	if node.PrebuildIndex < len(node.Package.Manifest.PreBuild) {
		entry := node.Package.Manifest.PreBuild[node.PrebuildIndex]
		inputs = resolvePaths(pkgRoot, entry.Inputs)
		outputs = resolvePaths(pkgRoot, entry.Outputs)
	}

	expanded := expandPrebuildCommand(node, modRoot, inputs, outputs)
	argv, err := splitFlags(expanded)
	if err != nil {
		return Command{}, err
	}
	return Command{Argv: argv, Inputs: inputs, Outputs: outputs, Dir: pkgRoot}, nil
}

func resolvePaths(root string, rel []string) []string {
	out := make([]string, len(rel))
	for i, r := range rel {
		out[i] = filepath.Join(root, r)
	}
	return out
}
