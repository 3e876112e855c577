// Package moonplz is the top-level orchestrator tying resolution, discovery,
// planning, lowering, and execution together into the verbs moon's CLI
// exposes (spec.md 6). It is named for the role thought-machine/please's
// src/plz package plays in that codebase: the thing src/moon.go calls into.
package moonplz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/op/go-logging.v1"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/discover"
	"github.com/moonbitlang/moon/src/resolve"
)

var log = logging.MustGetLogger("moonplz")

// Pipeline holds everything resolved once per invocation: the module graph,
// the package arena, and the inter-package dependency graph.
type Pipeline struct {
	Config *core.Configuration

	ModuleRoot string
	TargetRoot string

	Modules  *core.ModuleGraph
	Arena    *core.Arena
	Packages *core.PackageGraph
}

// Load reads the root module manifest at moduleRoot, resolves its full
// dependency graph via MVS, and discovers every package in every resolved
// module (spec.md 4.1, then 4.2). registry and gitHome configure how non-local
// dependencies are fetched; see src/resolve.
func Load(moduleRoot, targetRoot string, config *core.Configuration, registry resolve.Registry, gitHome string) (*Pipeline, error) {
	root, err := readRootManifest(moduleRoot)
	if err != nil {
		return nil, err
	}

	r := resolve.New(registry, gitHome)
	modGraph, arena, err := r.Resolve(root)
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies: %w", err)
	}

	pkgGraph := core.NewPackageGraph()
	d := discover.New(arena, pkgGraph)
	for _, mod := range arena.Modules() {
		if err := d.DiscoverModule(mod); err != nil {
			return nil, fmt.Errorf("discovering module %s: %w", mod.ID, err)
		}
	}
	if err := d.ResolveImports(); err != nil {
		return nil, fmt.Errorf("resolving imports: %w", err)
	}
	if cycle := pkgGraph.DetectCycle(); len(cycle) > 0 {
		return nil, fmt.Errorf("cyclic package dependency: %v", cycle)
	}

	return &Pipeline{
		Config:     config,
		ModuleRoot: moduleRoot,
		TargetRoot: targetRoot,
		Modules:    modGraph,
		Arena:      arena,
		Packages:   pkgGraph,
	}, nil
}

// DefaultTargetRoot returns "<moduleRoot>/target", the default output
// directory absent an explicit --target-dir override (spec.md 6).
func DefaultTargetRoot(moduleRoot string) string {
	return filepath.Join(moduleRoot, "target")
}

func readRootManifest(moduleRoot string) (*core.ModuleManifest, error) {
	path := filepath.Join(moduleRoot, "moon.mod.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m := &core.ModuleManifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", path, err)
	}
	m.Root = moduleRoot
	return m, nil
}

// RootModule returns the module whose manifest lives at p.ModuleRoot.
func (p *Pipeline) RootModule() (*core.Module, error) {
	for _, mod := range p.Arena.Modules() {
		if mod.Manifest.Root == p.ModuleRoot {
			return mod, nil
		}
	}
	return nil, fmt.Errorf("root module not found under %s", p.ModuleRoot)
}

// Package looks up a package by its fully-qualified name.
func (p *Pipeline) Package(fqn string) (*core.Package, error) {
	pkg, ok := p.Arena.LookupPackage(fqn)
	if !ok {
		return nil, fmt.Errorf("unknown package %q", fqn)
	}
	return pkg, nil
}

// AllPackageFQNs returns every discovered package's FQN, sorted.
func (p *Pipeline) AllPackageFQNs() []string {
	pkgs := p.Arena.Packages()
	fqns := make([]string, len(pkgs))
	for i, pkg := range pkgs {
		fqns[i] = pkg.FQN
	}
	sort.Strings(fqns)
	return fqns
}
