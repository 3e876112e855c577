package plan

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/discover"
)

// Constructor expands a set of goal nodes into the full need-graph (spec.md
// 4.3), walking the package dependency graph discovery already built.
type Constructor struct {
	arena   *core.Arena
	pkgs    *core.PackageGraph
	backend string
	debug   bool
}

// New constructs a plan Constructor for one backend/opt-level build.
func New(arena *core.Arena, pkgs *core.PackageGraph, backend string, debug bool) *Constructor {
	return &Constructor{arena: arena, pkgs: pkgs, backend: backend, debug: debug}
}

// key builds a NodeKey for this constructor's backend/opt-level.
func (c *Constructor) key(kind NodeKind, fqn string, target core.TargetKind, index int) NodeKey {
	return NodeKey{Kind: kind, FQN: fqn, Target: target, Backend: c.backend, OptDebug: c.debug, Index: index}
}

// Construct processes every goal and everything it transitively needs,
// returning the resulting graph. Construction never aborts on the first bad
// node; errors accumulate and are returned together once the queue drains.
func (c *Constructor) Construct(goals []NodeKey) (*Graph, error) {
	g := NewGraph()
	for _, key := range goals {
		g.Need(key)
	}

	var errs *multierror.Error
	for {
		key, ok := g.NextUnresolved()
		if !ok {
			break
		}
		if err := c.resolve(g, key); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return g, err
	}
	if err := g.CheckAllResolved(); err != nil {
		return g, err
	}
	return g, nil
}

func (c *Constructor) resolve(g *Graph, key NodeKey) error {
	switch key.Kind {
	case Check:
		return c.resolveCheck(g, key)
	case BuildCore:
		return c.resolveBuildCore(g, key)
	case LinkCore:
		return c.resolveLinkCore(g, key)
	case RunPrebuild:
		return c.resolvePrebuild(g, key)
	case ArchiveOrLinkCStubs:
		return c.resolveArchiveOrLinkCStubs(g, key)
	case Bundle:
		return c.resolveBundle(g, key)
	case ParseMbti:
		return c.resolveParseMbti(g, key)
	case BuildCStub, GenerateTestInfo, BuildRuntimeLib, GenerateMbti, BuildDocs, MakeExecutable:
		// Leaves of the need-graph: their inputs are a fixed package/file set
		// with no further abstract dependencies to expand (spec.md 4.3 only
		// describes per-node deps for the kinds above; these are populated
		// entirely by src/lower from the node's own key and package).
		g.MarkResolved(key)
		return nil
	}
	return fmt.Errorf("internal error: unhandled node kind %s", key.Kind)
}

func (c *Constructor) pkg(fqn string) (*core.Package, error) {
	pkg, ok := c.arena.LookupPackage(fqn)
	if !ok {
		return nil, fmt.Errorf("plan construction: unknown package %q", fqn)
	}
	return pkg, nil
}

// resolveCheck implements spec.md 4.3's Check(target) rule.
func (c *Constructor) resolveCheck(g *Graph, key NodeKey) error {
	pkg, err := c.pkg(key.FQN)
	if err != nil {
		return err
	}
	n := g.Node(key)
	n.Package = pkg

	target := core.BuildTarget{Package: pkg, Kind: key.Target}
	for _, dep := range c.pkgs.Deps(target) {
		depKey := c.key(Check, dep.To.Package.FQN, dep.To.Kind, 0)
		g.Need(depKey)
		n.Deps = append(n.Deps, depKey)
	}
	for i := range pkg.Manifest.PreBuild {
		pbKey := c.key(RunPrebuild, pkg.FQN, core.TargetSource, i)
		g.Need(pbKey)
		n.Deps = append(n.Deps, pbKey)
	}
	g.MarkResolved(key)
	return nil
}

// resolveBuildCore implements spec.md 4.3's BuildCore(target) rule.
func (c *Constructor) resolveBuildCore(g *Graph, key NodeKey) error {
	pkg, err := c.pkg(key.FQN)
	if err != nil {
		return err
	}
	n := g.Node(key)
	n.Package = pkg

	target := core.BuildTarget{Package: pkg, Kind: key.Target}
	for _, dep := range c.pkgs.Deps(target) {
		depKey := c.key(BuildCore, dep.To.Package.FQN, dep.To.Kind, 0)
		g.Need(depKey)
		n.Deps = append(n.Deps, depKey)
	}
	if key.Target == core.TargetWhiteboxTest || key.Target == core.TargetBlackboxTest || key.Target == core.TargetInlineTest {
		tiKey := c.key(GenerateTestInfo, pkg.FQN, key.Target, 0)
		g.Need(tiKey)
		n.Deps = append(n.Deps, tiKey)
	}
	for i := range pkg.Manifest.PreBuild {
		pbKey := c.key(RunPrebuild, pkg.FQN, core.TargetSource, i)
		g.Need(pbKey)
		n.Deps = append(n.Deps, pbKey)
	}
	g.MarkResolved(key)
	return nil
}

// resolveLinkCore implements spec.md 4.3's LinkCore/MakeExecutable rule: a
// DFS post-order traversal of the BuildCore dependency graph with
// whitebox-substitution, producing the ordered link closure.
func (c *Constructor) resolveLinkCore(g *Graph, key NodeKey) error {
	pkg, err := c.pkg(key.FQN)
	if err != nil {
		return err
	}
	n := g.Node(key)
	n.Package = pkg

	target := core.BuildTarget{Package: pkg, Kind: key.Target}
	closure, stubPkgs, err := c.linkClosure(target)
	if err != nil {
		return err
	}
	n.LinkClosure = closure
	n.CStubPackages = stubPkgs

	for _, ck := range closure {
		g.Need(ck)
		n.Deps = append(n.Deps, ck)
	}

	if c.backend == discover.BackendNative {
		mk := c.key(MakeExecutable, key.FQN, key.Target, 0)
		mn := g.Need(mk)
		mn.Package = pkg
		mn.LinkClosure = closure
		mn.CStubPackages = stubPkgs
		n.Deps = append(n.Deps, mk)

		for _, stubPkgFQN := range stubPkgs {
			sk := c.key(ArchiveOrLinkCStubs, stubPkgFQN, core.TargetSource, 0)
			g.Need(sk)
			mn.Deps = append(mn.Deps, sk)
		}
		rk := c.key(BuildRuntimeLib, "", core.TargetSource, 0)
		g.Need(rk)
		mn.Deps = append(mn.Deps, rk)
		g.MarkResolved(mk)
	}

	g.MarkResolved(key)
	return nil
}

// resolvePrebuild implements spec.md 4.3's RunPrebuild(pkg, i) rule: command
// expansion itself (the five substitution tokens) is src/lower's job, so
// construction only records which entry this node covers.
func (c *Constructor) resolvePrebuild(g *Graph, key NodeKey) error {
	pkg, err := c.pkg(key.FQN)
	if err != nil {
		return err
	}
	if key.Index < 0 || key.Index >= len(pkg.Manifest.PreBuild) {
		return fmt.Errorf("package %s: prebuild index %d out of range", pkg.FQN, key.Index)
	}
	n := g.Node(key)
	n.Package = pkg
	n.PrebuildIndex = key.Index
	n.PrebuildCommand = pkg.Manifest.PreBuild[key.Index].Command
	g.MarkResolved(key)
	return nil
}

// resolveArchiveOrLinkCStubs implements spec.md 4.3's
// ArchiveOrLinkCStubs(package) rule.
func (c *Constructor) resolveArchiveOrLinkCStubs(g *Graph, key NodeKey) error {
	pkg, err := c.pkg(key.FQN)
	if err != nil {
		return err
	}
	n := g.Node(key)
	n.Package = pkg
	for i := range pkg.CStubs {
		sk := c.key(BuildCStub, pkg.FQN, core.TargetSource, i)
		g.Need(sk)
		n.Deps = append(n.Deps, sk)
	}
	g.MarkResolved(key)
	return nil
}

// resolveBundle implements spec.md 4.3's Bundle(module) rule: needs
// BuildCore for every non-virtual package in the module.
func (c *Constructor) resolveBundle(g *Graph, key NodeKey) error {
	n := g.Node(key)
	for _, pkg := range c.arena.Packages() {
		if pkg.ModuleID.Name != key.FQN {
			continue
		}
		if pkg.Manifest.Virtual != nil && pkg.Manifest.Virtual.HasInterface {
			continue
		}
		bk := c.key(BuildCore, pkg.FQN, core.TargetSource, 0)
		g.Need(bk)
		n.Deps = append(n.Deps, bk)
	}
	g.MarkResolved(key)
	return nil
}

// resolveParseMbti implements spec.md 4.3's ParseMbti(pkg) rule: depends on
// interface files of packages the virtual package imports.
func (c *Constructor) resolveParseMbti(g *Graph, key NodeKey) error {
	pkg, err := c.pkg(key.FQN)
	if err != nil {
		return err
	}
	n := g.Node(key)
	n.Package = pkg

	target := core.BuildTarget{Package: pkg, Kind: core.TargetSource}
	for _, dep := range c.pkgs.Deps(target) {
		var depKey NodeKey
		if dep.To.Package.Manifest.Virtual != nil && dep.To.Package.Manifest.Virtual.HasInterface {
			depKey = c.key(ParseMbti, dep.To.Package.FQN, core.TargetSource, 0)
		} else {
			depKey = c.key(Check, dep.To.Package.FQN, core.TargetSource, 0)
		}
		g.Need(depKey)
		n.Deps = append(n.Deps, depKey)
	}
	g.MarkResolved(key)
	return nil
}
