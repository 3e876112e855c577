// Package lower implements build plan lowering (spec.md 4.4): translating
// each abstract plan.Node into a concrete Command (argv, inputs, outputs),
// following the artifact layout and flag derivation rules.
package lower

import (
	"path/filepath"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/plan"
)

// optDirName returns "debug" or "release", the second path component under
// the target root (spec.md 4.4, "Artifact layout").
func optDirName(debug bool) string {
	if debug {
		return "debug"
	}
	return "release"
}

// stageDirName returns the third path component: which pipeline stage an
// output belongs under.
func stageDirName(kind plan.NodeKind, target core.TargetKind) string {
	switch kind {
	case plan.Check, plan.ParseMbti:
		return "check"
	case plan.Bundle:
		return "bundle"
	default:
		if target == core.TargetInlineTest || target == core.TargetWhiteboxTest || target == core.TargetBlackboxTest {
			return "test"
		}
		return "build"
	}
}

// pkgDir returns <target-root>/<backend>/<opt>/<stage>/<pkg-path>, the
// directory every artifact for one package/stage/backend/opt is rooted
// under (spec.md 4.4, "Artifact layout").
func pkgDir(targetRoot string, node *plan.Node) string {
	pkgPath := node.Key.FQN
	if node.Package != nil {
		// Strip the module-name prefix: the artifact tree is organized by
		// in-module package path, not by fully-qualified name.
		pkgPath = stripModulePrefix(node.Package.FQN, node.Package.ModuleID.Name)
	}
	return filepath.Join(targetRoot, node.Key.Backend, optDirName(node.Key.OptDebug),
		stageDirName(node.Key.Kind, node.Key.Target), pkgPath)
}

func stripModulePrefix(fqn, moduleName string) string {
	prefix := moduleName + "/"
	if len(fqn) > len(prefix) && fqn[:len(prefix)] == prefix {
		return fqn[len(prefix):]
	}
	return fqn
}

// pkgName is the last path component of a package FQN, used as the base
// name of every artifact file (spec.md 4.4: "<pkgname>.mi", "<pkgname>.core").
func pkgName(fqn string) string {
	return filepath.Base(fqn)
}

// backendExt returns the link output extension for a backend (spec.md 6).
func backendExt(backend string) string {
	switch backend {
	case "wasm", "wasm-gc":
		return ".wasm"
	case "js":
		return ".js"
	case "native", "llvm":
		return ".exe"
	default:
		return ""
	}
}

// testKindSuffix names the three test-target artifact kinds (spec.md 4.4:
// "<pkgname>.{whitebox,internal,blackbox}_test...").
func testKindSuffix(target core.TargetKind) string {
	switch target {
	case core.TargetWhiteboxTest:
		return "whitebox_test"
	case core.TargetBlackboxTest:
		return "blackbox_test"
	default:
		return "internal_test"
	}
}
