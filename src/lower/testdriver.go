package lower

import (
	"path/filepath"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/plan"
)

// lowerGenerateTestInfo implements the GenerateTestInfo node kind (spec.md
// 4.4, "Test driver generation"): spawn `generate-test-driver` over the test
// target's source files and the metadata JSON the compiler emitted for
// them, producing one generated driver `.mbt` file.
func lowerGenerateTestInfo(node *plan.Node, o *Options, targetRoot string) (Command, error) {
	pkg := node.Package
	dir := pkgDir(targetRoot, node)
	kind := testKindSuffix(node.Key.Target)

	metadataJSON := filepath.Join(dir, pkgName(pkg.FQN)+"."+kind+".metadata.json")
	driverFile := filepath.Join(dir, "__generated_driver_for_"+kind+".mbt")

	inputs := append([]string(nil), testSources(pkg, node.Key.Target)...)
	inputs = append(inputs, metadataJSON)

	argv := []string{
		"moonc", "generate-test-driver",
		"-metadata", metadataJSON,
		"-pkg", pkg.FQN,
		"-o", driverFile,
	}
	return Command{Argv: argv, Inputs: inputs, Outputs: []string{driverFile, metadataJSON}, Dir: pkg.Root}, nil
}

// testSources returns the source files a test target's driver must scan,
// per the target kind's category in the package's classified source lists.
func testSources(pkg *core.Package, target core.TargetKind) []string {
	switch target {
	case core.TargetWhiteboxTest:
		return pkg.Sources.Whitebox
	case core.TargetBlackboxTest:
		return pkg.Sources.Blackbox
	default:
		return pkg.Sources.Regular
	}
}
