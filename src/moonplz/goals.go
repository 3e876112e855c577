package moonplz

import (
	"fmt"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/discover"
	"github.com/moonbitlang/moon/src/plan"
)

// packagesFor resolves a verb's "-p PKG" style package filter against the
// pipeline's discovered packages: an empty filter selects every package with
// an is-main entrypoint (for build/run) or every package (for check/test).
func (p *Pipeline) packagesFor(filter []string, all bool) ([]*core.Package, error) {
	if len(filter) > 0 {
		pkgs := make([]*core.Package, 0, len(filter))
		for _, fqn := range filter {
			pkg, err := p.Package(fqn)
			if err != nil {
				return nil, err
			}
			pkgs = append(pkgs, pkg)
		}
		return pkgs, nil
	}
	var pkgs []*core.Package
	for _, fqn := range p.AllPackageFQNs() {
		pkg, _ := p.Package(fqn)
		if all || pkg.Manifest.IsMain {
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs, nil
}

// BuildGoals returns the LinkCore (native: MakeExecutable's parent) goal
// nodes for building every is-main package named by filter, or every is-main
// package in the workspace if filter is empty (spec.md 4.3, "build"/"run").
func (p *Pipeline) BuildGoals(filter []string, backend string, debug bool) ([]plan.NodeKey, error) {
	pkgs, err := p.packagesFor(filter, false)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no is-main package found to build")
	}
	goals := make([]plan.NodeKey, len(pkgs))
	for i, pkg := range pkgs {
		goals[i] = plan.NodeKey{Kind: plan.LinkCore, FQN: pkg.FQN, Target: core.TargetSource, Backend: backend, OptDebug: debug}
	}
	return goals, nil
}

// CheckGoals returns the Check goal node for every package named by filter,
// or every discovered package if filter is empty (spec.md 4.3, "check").
func (p *Pipeline) CheckGoals(filter []string, backend string, debug bool) ([]plan.NodeKey, error) {
	pkgs, err := p.packagesFor(filter, true)
	if err != nil {
		return nil, err
	}
	goals := make([]plan.NodeKey, len(pkgs))
	for i, pkg := range pkgs {
		goals[i] = plan.NodeKey{Kind: plan.Check, FQN: pkg.FQN, Target: core.TargetSource, Backend: backend, OptDebug: debug}
	}
	return goals, nil
}

// TestGoals returns the LinkCore goal nodes for every test kind (inline,
// whitebox, blackbox) a package declares, across every package named by
// filter or every package in the workspace (spec.md 4.3/4.6, "test").
func (p *Pipeline) TestGoals(filter []string, backend string, debug bool) ([]plan.NodeKey, []testTarget, error) {
	pkgs, err := p.packagesFor(filter, true)
	if err != nil {
		return nil, nil, err
	}
	var goals []plan.NodeKey
	var targets []testTarget
	for _, pkg := range pkgs {
		for _, kind := range testKinds(pkg) {
			key := plan.NodeKey{Kind: plan.LinkCore, FQN: pkg.FQN, Target: kind, Backend: backend, OptDebug: debug}
			goals = append(goals, key)
			targets = append(targets, testTarget{Package: pkg, Kind: kind, Goal: key})
		}
	}
	return goals, targets, nil
}

// testTarget pairs a package+test-kind with the LinkCore goal that builds
// its test executable.
type testTarget struct {
	Package *core.Package
	Kind    core.TargetKind
	Goal    plan.NodeKey
}

func testKinds(pkg *core.Package) []core.TargetKind {
	var kinds []core.TargetKind
	if pkg.HasInlineTests() {
		kinds = append(kinds, core.TargetInlineTest)
	}
	if pkg.HasWhitebox() {
		kinds = append(kinds, core.TargetWhiteboxTest)
	}
	if pkg.HasBlackbox() {
		kinds = append(kinds, core.TargetBlackboxTest)
	}
	return kinds
}

// BundleGoal returns the Bundle goal node for a module (spec.md 4.3,
// "bundle").
func BundleGoal(moduleName, backend string, debug bool) plan.NodeKey {
	return plan.NodeKey{Kind: plan.Bundle, FQN: moduleName, Target: core.TargetSource, Backend: backend, OptDebug: debug}
}

// AllBackends lists every backend name recognized in artifact paths
// (spec.md 6, "Supported backends").
var AllBackends = []string{discover.BackendWasm, discover.BackendWasmGC, discover.BackendJS, discover.BackendNative, discover.BackendLLVM}
